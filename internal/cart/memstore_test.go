package cart

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/db"
)

// memStore is an in-memory Querier. RunInTx serialises transactions and
// restores a snapshot when fn fails, standing in for row locks and rollback.
type memStore struct {
	mu       sync.Mutex
	carts    map[pgtype.UUID]db.Cart
	items    []db.CartItem
	products map[pgtype.UUID]db.Product
	vouchers map[string]db.Voucher
	usages   []db.VoucherUsage
	clock    time.Time
	txCount  int
	// cartReads counts full cart loads.
	cartReads int
}

type memSnapshot struct {
	carts    map[pgtype.UUID]db.Cart
	items    []db.CartItem
	products map[pgtype.UUID]db.Product
	vouchers map[string]db.Voucher
	usages   []db.VoucherUsage
}

func newMemStore() *memStore {
	return &memStore{
		carts:    map[pgtype.UUID]db.Cart{},
		products: map[pgtype.UUID]db.Product{},
		vouchers: map[string]db.Voucher{},
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		carts:    make(map[pgtype.UUID]db.Cart, len(m.carts)),
		items:    append([]db.CartItem(nil), m.items...),
		products: make(map[pgtype.UUID]db.Product, len(m.products)),
		vouchers: make(map[string]db.Voucher, len(m.vouchers)),
		usages:   append([]db.VoucherUsage(nil), m.usages...),
	}
	for k, v := range m.carts {
		s.carts[k] = v
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.vouchers {
		s.vouchers[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.carts, m.items, m.products, m.vouchers, m.usages = s.carts, s.items, s.products, s.vouchers, s.usages
}

func (m *memStore) tick() pgtype.Timestamptz {
	m.clock = m.clock.Add(time.Millisecond)
	return pgtype.Timestamptz{Time: m.clock, Valid: true}
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

// test helpers take the store lock themselves

func (m *memStore) putProduct(p db.Product) db.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !p.ID.Valid {
		p.ID = newID()
	}
	if p.Status == "" {
		p.Status = db.ProductStatusActive
	}
	m.products[p.ID] = p
	return p
}

func (m *memStore) putVoucher(v db.Voucher) db.Voucher {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !v.ID.Valid {
		v.ID = newID()
	}
	if v.Status == "" {
		v.Status = db.VoucherStatusActive
	}
	m.vouchers[v.Code] = v
	return v
}

func (m *memStore) addUsage(u db.VoucherUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usages = append(m.usages, u)
}

func (m *memStore) cartByID(id string) (db.Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, err := toUUID(id)
	if err != nil {
		return db.Cart{}, false
	}
	c, ok := m.carts[pid]
	return c, ok
}

func (m *memStore) itemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Querier

func (m *memStore) GetCartByID(ctx context.Context, id pgtype.UUID) (db.Cart, error) {
	m.cartReads++
	c, ok := m.carts[id]
	if !ok {
		return db.Cart{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *memStore) GetCartByIDForUpdate(ctx context.Context, id pgtype.UUID) (db.Cart, error) {
	return m.GetCartByID(ctx, id)
}

func (m *memStore) GetCartVersion(ctx context.Context, id pgtype.UUID) (int64, error) {
	c, ok := m.carts[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return c.Version, nil
}

func (m *memStore) GetCartByUser(ctx context.Context, userID pgtype.UUID) (db.Cart, error) {
	for _, c := range m.carts {
		if c.UserID.Valid && c.UserID == userID {
			return c, nil
		}
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (m *memStore) GetCartByAnon(ctx context.Context, anonID pgtype.Text) (db.Cart, error) {
	for _, c := range m.carts {
		if c.AnonID.Valid && c.AnonID.String == anonID.String {
			return c, nil
		}
	}
	return db.Cart{}, pgx.ErrNoRows
}

func (m *memStore) CreateCart(ctx context.Context, arg db.CreateCartParams) (db.Cart, error) {
	if arg.UserID.Valid {
		if _, err := m.GetCartByUser(ctx, arg.UserID); err == nil {
			return db.Cart{}, pgx.ErrNoRows
		}
	} else if _, err := m.GetCartByAnon(ctx, arg.AnonID); err == nil {
		return db.Cart{}, pgx.ErrNoRows
	}
	now := m.tick()
	c := db.Cart{
		ID:            newID(),
		UserID:        arg.UserID,
		AnonID:        arg.AnonID,
		Subtotal:      decimal.Zero,
		TaxTotal:      decimal.Zero,
		DiscountTotal: decimal.Zero,
		GrandTotal:    decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.carts[c.ID] = c
	return c, nil
}

func (m *memStore) UpdateCartTotals(ctx context.Context, arg db.UpdateCartTotalsParams) error {
	c, ok := m.carts[arg.ID]
	if !ok {
		return nil
	}
	c.AppliedVoucherCode = arg.AppliedVoucherCode
	c.Subtotal = arg.Subtotal
	c.TaxTotal = arg.TaxTotal
	c.DiscountTotal = arg.DiscountTotal
	c.GrandTotal = arg.GrandTotal
	c.Version++
	c.UpdatedAt = m.tick()
	m.carts[arg.ID] = c
	return nil
}

func (m *memStore) DeleteCart(ctx context.Context, id pgtype.UUID) error {
	delete(m.carts, id)
	return m.DeleteCartItems(ctx, id)
}

func (m *memStore) ListCartItems(ctx context.Context, cartID pgtype.UUID) ([]db.CartItem, error) {
	var out []db.CartItem
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) FindCartItemByProduct(ctx context.Context, arg db.FindCartItemByProductParams) (db.CartItem, error) {
	for _, it := range m.items {
		if it.CartID == arg.CartID && it.ProductID == arg.ProductID {
			return it, nil
		}
	}
	return db.CartItem{}, pgx.ErrNoRows
}

func (m *memStore) CreateCartItem(ctx context.Context, arg db.CreateCartItemParams) (db.CartItem, error) {
	now := m.tick()
	it := db.CartItem{
		ID:            newID(),
		CartID:        arg.CartID,
		ProductID:     arg.ProductID,
		Qty:           arg.Qty,
		UnitPrice:     arg.UnitPrice,
		TaxRate:       arg.TaxRate,
		UnitTax:       arg.UnitTax,
		UnitPriceIncl: arg.UnitPriceIncl,
		LineSubtotal:  arg.LineSubtotal,
		LineTax:       arg.LineTax,
		LineTotal:     arg.LineTotal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.items = append(m.items, it)
	return it, nil
}

func (m *memStore) UpdateCartItemQty(ctx context.Context, arg db.UpdateCartItemQtyParams) (db.CartItem, error) {
	for i, it := range m.items {
		if it.ID == arg.ID {
			it.Qty = arg.Qty
			it.LineSubtotal = arg.LineSubtotal
			it.LineTax = arg.LineTax
			it.LineTotal = arg.LineTotal
			it.UpdatedAt = m.tick()
			m.items[i] = it
			return it, nil
		}
	}
	return db.CartItem{}, pgx.ErrNoRows
}

func (m *memStore) DeleteCartItem(ctx context.Context, arg db.DeleteCartItemParams) error {
	kept := m.items[:0:0]
	for _, it := range m.items {
		if it.CartID == arg.CartID && it.ProductID == arg.ProductID {
			continue
		}
		kept = append(kept, it)
	}
	m.items = kept
	return nil
}

func (m *memStore) DeleteCartItems(ctx context.Context, cartID pgtype.UUID) error {
	kept := m.items[:0:0]
	for _, it := range m.items {
		if it.CartID != cartID {
			kept = append(kept, it)
		}
	}
	m.items = kept
	return nil
}

func (m *memStore) GetProduct(ctx context.Context, id pgtype.UUID) (db.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return db.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memStore) GetProductForShare(ctx context.Context, id pgtype.UUID) (db.Product, error) {
	return m.GetProduct(ctx, id)
}

func (m *memStore) GetVoucherByCode(ctx context.Context, code string) (db.Voucher, error) {
	v, ok := m.vouchers[code]
	if !ok {
		return db.Voucher{}, pgx.ErrNoRows
	}
	return v, nil
}

func (m *memStore) GetVoucherByCodeForUpdate(ctx context.Context, code string) (db.Voucher, error) {
	return m.GetVoucherByCode(ctx, code)
}

func (m *memStore) CountVoucherUsageByUser(ctx context.Context, arg db.CountVoucherUsageByUserParams) (int64, error) {
	var n int64
	for _, u := range m.usages {
		if u.VoucherID == arg.VoucherID && u.UserID == arg.UserID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetVoucherUsageByOrder(ctx context.Context, arg db.GetVoucherUsageByOrderParams) (db.VoucherUsage, error) {
	for _, u := range m.usages {
		if u.VoucherID == arg.VoucherID && u.OrderID == arg.OrderID {
			return u, nil
		}
	}
	return db.VoucherUsage{}, pgx.ErrNoRows
}

func (m *memStore) InsertVoucherUsage(ctx context.Context, arg db.InsertVoucherUsageParams) error {
	m.usages = append(m.usages, db.VoucherUsage{
		ID:        newID(),
		VoucherID: arg.VoucherID,
		UserID:    arg.UserID,
		OrderID:   arg.OrderID,
		Amount:    arg.Amount,
		CreatedAt: m.tick(),
	})
	return nil
}

func (m *memStore) IncreaseVoucherUsedCount(ctx context.Context, id pgtype.UUID) error {
	for code, v := range m.vouchers {
		if v.ID == id {
			v.UsedCount++
			m.vouchers[code] = v
		}
	}
	return nil
}
