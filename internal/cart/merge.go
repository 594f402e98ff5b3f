package cart

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/lock"
)

// SkippedItem is a guest line that could not move into the user cart. It
// stays in the guest cart.
type SkippedItem struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
	Reason    string `json:"reason"`
}

// MergeResult reports the outcome of a guest-to-user merge.
type MergeResult struct {
	Cart             View          `json:"cart"`
	GuestCartID      string        `json:"guestCartId,omitempty"`
	Merged           int           `json:"merged"`
	Skipped          []SkippedItem `json:"skipped"`
	GuestCartDeleted bool          `json:"guestCartDeleted"`
}

// MergeGuestCart moves the session's guest cart into the user's cart. Each
// guest line goes through the add-item path so quantities combine and stock
// is re-checked at current catalog prices. Lines that cannot be added are
// reported and left in the guest cart, which is deleted only when empty.
func (s *Service) MergeGuestCart(ctx context.Context, sessionID, userID string) (MergeResult, error) {
	if err := s.configured(); err != nil {
		return MergeResult{}, err
	}
	session := strings.TrimSpace(sessionID)
	if session == "" || strings.TrimSpace(userID) == "" {
		return MergeResult{}, missingIdentity()
	}
	uid, _, err := Identity{UserID: userID}.resolve()
	if err != nil {
		return MergeResult{}, err
	}
	anon := pgtype.Text{String: session, Valid: true}

	var res MergeResult
	run := func(ctx context.Context) error {
		return s.Tx.RunInTx(ctx, func(q Querier) error {
			var err error
			res, err = s.merge(ctx, q, anon, uid)
			return err
		})
	}
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, cache.KeyMergeLock(session), s.lockTTL(), run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		err = common.NewAppError(common.CodeLockNotAcquired, "a merge for this session is already running", http.StatusConflict, err)
	}
	s.Metrics.ObserveMutation("merge", err)
	if err != nil {
		return MergeResult{}, err
	}
	s.invalidate(ctx, res.GuestCartID, res.Cart.ID)
	s.Metrics.MergeItemsAdd(res.Merged, len(res.Skipped))
	return res, nil
}

func (s *Service) merge(ctx context.Context, q Querier, anon pgtype.Text, userID pgtype.UUID) (MergeResult, error) {
	userCart, err := findOrCreate(ctx, q, userID, pgtype.Text{})
	if err != nil {
		return MergeResult{}, err
	}
	guest, err := q.GetCartByAnon(ctx, anon)
	if errors.Is(err, pgx.ErrNoRows) {
		view, err := load(ctx, q, userCart.ID)
		return MergeResult{Cart: view, Skipped: []SkippedItem{}}, err
	}
	if err != nil {
		return MergeResult{}, err
	}

	// lock both rows in id order so concurrent merges cannot deadlock
	first, second := guest.ID, userCart.ID
	if uuidLess(second, first) {
		first, second = second, first
	}
	locked := map[pgtype.UUID]db.Cart{}
	for _, id := range []pgtype.UUID{first, second} {
		c, err := lockCart(ctx, q, id)
		if err != nil {
			return MergeResult{}, err
		}
		locked[id] = c
	}
	guest, userCart = locked[guest.ID], locked[userCart.ID]

	items, err := q.ListCartItems(ctx, guest.ID)
	if err != nil {
		return MergeResult{}, err
	}
	res := MergeResult{Skipped: []SkippedItem{}}
	for _, it := range items {
		err := addItem(ctx, q, userCart.ID, it.ProductID, int64(it.Qty))
		if err != nil {
			appErr, ok := common.AsAppError(err)
			if !ok {
				return MergeResult{}, err
			}
			res.Skipped = append(res.Skipped, SkippedItem{
				ProductID: UUIDString(it.ProductID),
				Quantity:  it.Qty,
				Reason:    appErr.Code,
			})
			continue
		}
		if err := q.DeleteCartItem(ctx, db.DeleteCartItemParams{CartID: guest.ID, ProductID: it.ProductID}); err != nil {
			return MergeResult{}, err
		}
		res.Merged++
	}

	if !hasVoucher(userCart) && hasVoucher(guest) {
		userCart.AppliedVoucherCode = guest.AppliedVoucherCode
	}
	if _, err := s.recalculate(ctx, q, userCart); err != nil {
		return MergeResult{}, err
	}

	if len(res.Skipped) == 0 {
		if err := q.DeleteCart(ctx, guest.ID); err != nil {
			return MergeResult{}, err
		}
		res.GuestCartDeleted = true
	} else if _, err := s.recalculate(ctx, q, guest); err != nil {
		return MergeResult{}, err
	}

	res.Cart, err = load(ctx, q, userCart.ID)
	if err != nil {
		return MergeResult{}, err
	}
	res.GuestCartID = UUIDString(guest.ID)
	s.Logger.Info().
		Str("user_cart_id", res.Cart.ID).
		Str("guest_cart_id", UUIDString(guest.ID)).
		Int("merged", res.Merged).
		Int("skipped", len(res.Skipped)).
		Msg("guest cart merged")
	return res, nil
}
