package cart

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-cart/internal/common"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// NewHandler constructs a handler with a validator that reports JSON field names.
func NewHandler(svc *Service) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Svc: svc, Validate: v}
}

// Routes mounts the cart endpoints. writes wraps every mutating route, e.g.
// with the idempotency middleware.
func (h *Handler) Routes(r chi.Router, writes func(http.Handler) http.Handler) {
	if writes == nil {
		writes = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(writes)
			r.Post("/carts", h.Create)
			r.Post("/cart/items", h.AddItemForIdentity)
			r.Post("/carts/merge", h.Merge)
			r.Delete("/carts/{id}", h.Delete)
			r.Post("/carts/{id}/items", h.AddItem)
			r.Delete("/carts/{id}/items", h.Clear)
			r.Patch("/carts/{id}/items/{productId}", h.UpdateQuantity)
			r.Delete("/carts/{id}/items/{productId}", h.RemoveItem)
			r.Post("/carts/{id}/voucher", h.ApplyVoucher)
			r.Delete("/carts/{id}/voucher", h.RemoveVoucher)
			r.Post("/carts/{id}/recalculate", h.Recalculate)
		})
		r.Get("/carts/{id}", h.Get)
	})
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=10000"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=10000"`
}

type applyVoucherRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type mergeRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

func identityFrom(r *http.Request) Identity {
	user, _ := common.UserID(r.Context())
	session, _ := common.SessionID(r.Context())
	return Identity{UserID: user, SessionID: session}
}

// Create finds or creates the caller's cart.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.FindOrCreate(r.Context(), identityFrom(r))
	h.respond(w, http.StatusCreated, view, err)
}

// Get returns the cart view.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, view, err)
}

// Delete removes the cart.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds a product to the cart in the path.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), req.ProductID, req.Quantity)
	h.respond(w, http.StatusOK, view, err)
}

// AddItemForIdentity adds a product to the caller's cart, creating it on first use.
func (h *Handler) AddItemForIdentity(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.AddItemFor(r.Context(), identityFrom(r), req.ProductID, req.Quantity)
	h.respond(w, http.StatusOK, view, err)
}

// UpdateQuantity sets a line's quantity; zero or less removes the line.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"), *req.Quantity)
	h.respond(w, http.StatusOK, view, err)
}

// RemoveItem deletes one line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	h.respond(w, http.StatusOK, view, err)
}

// Clear removes every line and the voucher.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Clear(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, view, err)
}

// ApplyVoucher attaches a voucher code.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	var req applyVoucherRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.ApplyVoucher(r.Context(), chi.URLParam(r, "id"), req.Code)
	h.respond(w, http.StatusOK, view, err)
}

// RemoveVoucher detaches the voucher.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.RemoveVoucher(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, view, err)
}

// Recalculate refreshes totals.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	view, err := h.Svc.Recalculate(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, http.StatusOK, view, err)
}

// Merge folds the caller's guest cart into their user cart. The session id
// comes from the body or, when absent, the request identity.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	ident := identityFrom(r)
	session := strings.TrimSpace(req.SessionID)
	if session == "" {
		session = ident.SessionID
	}
	res, err := h.Svc.MergeGuestCart(r.Context(), session, ident.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// decode reads an optional JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return common.BadRequest("invalid payload", err)
		}
	}
	if h.Validate == nil {
		return nil
	}
	if err := h.Validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return common.NewAppError(common.CodeValidationFailure, "request validation failed", http.StatusBadRequest, err).WithDetails(fields)
		}
		return common.BadRequest("invalid payload", err)
	}
	return nil
}

func (h *Handler) respond(w http.ResponseWriter, status int, view View, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, status, view)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if !common.IsAppError(err) && h.Svc != nil {
		h.Svc.Logger.Error().Err(err).Msg("cart request failed")
	}
	common.WriteError(w, err)
}
