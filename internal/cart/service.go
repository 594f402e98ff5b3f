package cart

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service implements the cart engine: line-item mutations, voucher
// application, recalculation and lifecycle. Every mutation runs in one
// transaction holding the cart row lock.
type Service struct {
	Tx        TxRunner
	Vouchers  *voucher.Service
	Allocator pricing.DiscountAllocator
	Locker    Locker
	LockTTL   time.Duration
	Views     *cache.JSON
	Metrics   *obs.CartMetrics
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (s *Service) configured() error {
	if s == nil || s.Tx == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

func (s *Service) allocator() pricing.DiscountAllocator {
	if s.Allocator != nil {
		return s.Allocator
	}
	return pricing.BlendedRate{}
}

func (s *Service) vouchers(q Querier) *voucher.Service {
	base := s.Vouchers
	if base == nil {
		base = &voucher.Service{Now: s.Now}
	}
	return base.WithQuerier(q)
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	return 10 * time.Second
}

// FindOrCreate returns the cart for the identity, creating an empty one when
// none exists.
func (s *Service) FindOrCreate(ctx context.Context, ident Identity) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	userID, anonID, err := ident.resolve()
	if err != nil {
		return View{}, err
	}
	var view View
	err = s.Tx.RunInTx(ctx, func(q Querier) error {
		c, err := findOrCreate(ctx, q, userID, anonID)
		if err != nil {
			return err
		}
		view, err = load(ctx, q, c.ID)
		return err
	})
	return view, err
}

func findOrCreate(ctx context.Context, q Querier, userID pgtype.UUID, anonID pgtype.Text) (db.Cart, error) {
	lookup := func() (db.Cart, error) {
		if userID.Valid {
			return q.GetCartByUser(ctx, userID)
		}
		return q.GetCartByAnon(ctx, anonID)
	}
	c, err := lookup()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return db.Cart{}, err
	}
	c, err = q.CreateCart(ctx, db.CreateCartParams{UserID: userID, AnonID: anonID})
	if errors.Is(err, pgx.ErrNoRows) {
		// lost the insert race; the winner's row is visible now
		return lookup()
	}
	return c, err
}

// Get returns the cart view, served from the view cache when possible.
func (s *Service) Get(ctx context.Context, cartID string) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	id, err := parseID(cartID, "cart id")
	if err != nil {
		return View{}, err
	}
	key := cache.KeyCartView(UUIDString(id))
	var cached View
	hit, err := s.Views.Get(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", UUIDString(id)).Msg("cart view cache read failed")
		hit = false
	}
	var view View
	err = s.Tx.RunInTx(ctx, func(q Querier) error {
		if hit {
			// a cached view is served only while no write has bumped the version
			version, err := q.GetCartVersion(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return cartNotFound()
				}
				return err
			}
			if version == cached.Version {
				view = cached
				return nil
			}
		}
		var err error
		view, err = load(ctx, q, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCartNotFound) && hit {
			s.invalidate(ctx, UUIDString(id))
		}
		return View{}, err
	}
	if hit && view.Version == cached.Version {
		return view, nil
	}
	if err := s.Views.Set(ctx, key, view); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", view.ID).Msg("cart view cache write failed")
	}
	return view, nil
}

func load(ctx context.Context, q Querier, id pgtype.UUID) (View, error) {
	c, err := q.GetCartByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, cartNotFound()
		}
		return View{}, err
	}
	items, err := q.ListCartItems(ctx, id)
	if err != nil {
		return View{}, err
	}
	return newView(c, items), nil
}

func lockCart(ctx context.Context, q Querier, id pgtype.UUID) (db.Cart, error) {
	c, err := q.GetCartByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Cart{}, cartNotFound()
		}
		return db.Cart{}, err
	}
	return c, nil
}

// mutate locks the cart, applies fn, recalculates and returns the fresh view.
func (s *Service) mutate(ctx context.Context, op, cartID string, fn func(q Querier, c *db.Cart) error) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	id, err := parseID(cartID, "cart id")
	if err != nil {
		s.Metrics.ObserveMutation(op, err)
		return View{}, err
	}
	var view View
	err = s.Tx.RunInTx(ctx, func(q Querier) error {
		c, err := lockCart(ctx, q, id)
		if err != nil {
			return err
		}
		if err := fn(q, &c); err != nil {
			return err
		}
		if _, err := s.recalculate(ctx, q, c); err != nil {
			return err
		}
		view, err = load(ctx, q, id)
		return err
	})
	s.Metrics.ObserveMutation(op, err)
	if err != nil {
		return View{}, err
	}
	s.invalidate(ctx, view.ID)
	return view, nil
}

func (s *Service) invalidate(ctx context.Context, cartIDs ...string) {
	keys := make([]string, 0, len(cartIDs))
	for _, id := range cartIDs {
		if id != "" {
			keys = append(keys, cache.KeyCartView(id))
		}
	}
	if err := s.Views.Delete(ctx, keys...); err != nil {
		s.Logger.Warn().Err(err).Strs("cart_ids", cartIDs).Msg("cart view cache invalidation failed")
	}
}

// AddItem adds qty units of the product. An existing line keeps its price
// snapshot and only grows in quantity.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, qty int) (View, error) {
	pid, err := parseID(productID, "product id")
	if err != nil {
		return View{}, err
	}
	if qty < 1 || qty > MaxLineQuantity {
		return View{}, invalidQuantity()
	}
	return s.mutate(ctx, "add_item", cartID, func(q Querier, c *db.Cart) error {
		return addItem(ctx, q, c.ID, pid, int64(qty))
	})
}

// AddItemFor finds or creates the identity's cart and adds the product to it
// in one transaction.
func (s *Service) AddItemFor(ctx context.Context, ident Identity, productID string, qty int) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	userID, anonID, err := ident.resolve()
	if err != nil {
		return View{}, err
	}
	pid, err := parseID(productID, "product id")
	if err != nil {
		return View{}, err
	}
	if qty < 1 || qty > MaxLineQuantity {
		return View{}, invalidQuantity()
	}
	var view View
	err = s.Tx.RunInTx(ctx, func(q Querier) error {
		created, err := findOrCreate(ctx, q, userID, anonID)
		if err != nil {
			return err
		}
		c, err := lockCart(ctx, q, created.ID)
		if err != nil {
			return err
		}
		if err := addItem(ctx, q, c.ID, pid, int64(qty)); err != nil {
			return err
		}
		if _, err := s.recalculate(ctx, q, c); err != nil {
			return err
		}
		view, err = load(ctx, q, c.ID)
		return err
	})
	s.Metrics.ObserveMutation("add_item", err)
	if err != nil {
		return View{}, err
	}
	s.invalidate(ctx, view.ID)
	return view, nil
}

// addItem validates availability and stock for the resulting line quantity and
// writes the line. The product row is share-locked so stock cannot change
// between the check and the commit.
func addItem(ctx context.Context, q Querier, cartID, productID pgtype.UUID, qty int64) error {
	p, err := q.GetProductForShare(ctx, productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return productUnavailable()
		}
		return err
	}
	if p.Status != db.ProductStatusActive {
		return productUnavailable()
	}
	existing, err := q.FindCartItemByProduct(ctx, db.FindCartItemByProductParams{CartID: cartID, ProductID: productID})
	switch {
	case err == nil:
		total := int64(existing.Qty) + qty
		if total > MaxLineQuantity {
			return invalidQuantity()
		}
		if int64(p.Stock) < total {
			return outOfStock(p.Stock, total)
		}
		return writeQty(ctx, q, existing, int32(total))
	case errors.Is(err, pgx.ErrNoRows):
		if int64(p.Stock) < qty {
			return outOfStock(p.Stock, qty)
		}
		line := pricing.NewSnapshot(p.Price, p.TaxRate).Line(int(qty))
		_, err = q.CreateCartItem(ctx, db.CreateCartItemParams{
			CartID:        cartID,
			ProductID:     productID,
			Qty:           int32(qty),
			UnitPrice:     line.UnitPriceExcl,
			TaxRate:       line.TaxRate,
			UnitTax:       line.UnitTax,
			UnitPriceIncl: line.UnitPriceIncl,
			LineSubtotal:  line.LineSubtotal,
			LineTax:       line.LineTax,
			LineTotal:     line.LineTotal,
		})
		return err
	default:
		return err
	}
}

func writeQty(ctx context.Context, q Querier, item db.CartItem, qty int32) error {
	line := snapshotOf(item).Line(int(qty))
	_, err := q.UpdateCartItemQty(ctx, db.UpdateCartItemQtyParams{
		ID:           item.ID,
		Qty:          qty,
		LineSubtotal: line.LineSubtotal,
		LineTax:      line.LineTax,
		LineTotal:    line.LineTotal,
	})
	return err
}

// UpdateQuantity sets the absolute quantity of a line. qty <= 0 removes it.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, productID string, qty int) (View, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, cartID, productID)
	}
	if qty > MaxLineQuantity {
		return View{}, invalidQuantity()
	}
	pid, err := parseID(productID, "product id")
	if err != nil {
		return View{}, err
	}
	return s.mutate(ctx, "update_quantity", cartID, func(q Querier, c *db.Cart) error {
		item, err := q.FindCartItemByProduct(ctx, db.FindCartItemByProductParams{CartID: c.ID, ProductID: pid})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return itemNotFound()
			}
			return err
		}
		p, err := q.GetProductForShare(ctx, pid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return productUnavailable()
			}
			return err
		}
		if p.Status != db.ProductStatusActive {
			return productUnavailable()
		}
		if int64(p.Stock) < int64(qty) {
			return outOfStock(p.Stock, int64(qty))
		}
		return writeQty(ctx, q, item, int32(qty))
	})
}

// RemoveItem deletes the product's line if present.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (View, error) {
	pid, err := parseID(productID, "product id")
	if err != nil {
		return View{}, err
	}
	return s.mutate(ctx, "remove_item", cartID, func(q Querier, c *db.Cart) error {
		return q.DeleteCartItem(ctx, db.DeleteCartItemParams{CartID: c.ID, ProductID: pid})
	})
}

// Clear empties the cart and drops its voucher in a single write.
func (s *Service) Clear(ctx context.Context, cartID string) (View, error) {
	if err := s.configured(); err != nil {
		return View{}, err
	}
	id, err := parseID(cartID, "cart id")
	if err != nil {
		return View{}, err
	}
	var view View
	err = s.Tx.RunInTx(ctx, func(q Querier) error {
		c, err := lockCart(ctx, q, id)
		if err != nil {
			return err
		}
		if err := q.DeleteCartItems(ctx, c.ID); err != nil {
			return err
		}
		if err := q.UpdateCartTotals(ctx, db.UpdateCartTotalsParams{
			ID:            c.ID,
			Subtotal:      decimal.Zero,
			TaxTotal:      decimal.Zero,
			DiscountTotal: decimal.Zero,
			GrandTotal:    decimal.Zero,
		}); err != nil {
			return err
		}
		view, err = load(ctx, q, c.ID)
		return err
	})
	s.Metrics.ObserveMutation("clear", err)
	if err != nil {
		return View{}, err
	}
	s.invalidate(ctx, view.ID)
	return view, nil
}

// ApplyVoucher validates code against the cart's current subtotal and
// attaches it. A rejection leaves the cart untouched.
func (s *Service) ApplyVoucher(ctx context.Context, cartID, code string) (View, error) {
	return s.mutate(ctx, "apply_voucher", cartID, func(q Querier, c *db.Cart) error {
		items, err := q.ListCartItems(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return emptyCart()
		}
		base := pricing.Aggregate(linesOf(items))
		eval, err := s.vouchers(q).Evaluate(ctx, code, c.UserID, base.SubtotalExclTax)
		if err != nil {
			if voucher.IsRejection(err) {
				s.Metrics.VoucherRejectedInc(voucher.Reason(err))
				return voucherRejected(err)
			}
			return err
		}
		c.AppliedVoucherCode = pgtype.Text{String: eval.Code, Valid: true}
		return nil
	})
}

// RemoveVoucher detaches any voucher and recalculates.
func (s *Service) RemoveVoucher(ctx context.Context, cartID string) (View, error) {
	return s.mutate(ctx, "remove_voucher", cartID, func(q Querier, c *db.Cart) error {
		c.AppliedVoucherCode = pgtype.Text{}
		return nil
	})
}

// Recalculate recomputes totals without another change, detaching a voucher
// that no longer applies. Checkout calls it before taking a snapshot.
func (s *Service) Recalculate(ctx context.Context, cartID string) (View, error) {
	return s.mutate(ctx, "recalculate", cartID, func(Querier, *db.Cart) error { return nil })
}

// Delete removes the cart and its items.
func (s *Service) Delete(ctx context.Context, cartID string) error {
	if err := s.configured(); err != nil {
		return err
	}
	id, err := parseID(cartID, "cart id")
	if err != nil {
		return err
	}
	err = s.Tx.RunInTx(ctx, func(q Querier) error {
		if _, err := lockCart(ctx, q, id); err != nil {
			return err
		}
		return q.DeleteCart(ctx, id)
	})
	s.Metrics.ObserveMutation("delete", err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, UUIDString(id))
	return nil
}
