package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const voucherColumns = `id, code, kind, value, max_discount, min_order, valid_from, valid_to, usage_limit, per_user_limit, used_count, status, created_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var (
		v                        Voucher
		value, maxDisc, minOrder pgtype.Numeric
	)
	err := row.Scan(
		&v.ID,
		&v.Code,
		&v.Kind,
		&value,
		&maxDisc,
		&minOrder,
		&v.ValidFrom,
		&v.ValidTo,
		&v.UsageLimit,
		&v.PerUserLimit,
		&v.UsedCount,
		&v.Status,
		&v.CreatedAt,
	)
	if err != nil {
		return Voucher{}, err
	}
	v.Value = Decimal(value)
	v.MaxDiscount = NullDecimal(maxDisc)
	v.MinOrder = Decimal(minOrder)
	return v, nil
}

const getVoucherByCode = `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`

func (q *Queries) GetVoucherByCode(ctx context.Context, code string) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherByCode, code))
}

const getVoucherByCodeForUpdate = `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1 FOR UPDATE`

func (q *Queries) GetVoucherByCodeForUpdate(ctx context.Context, code string) (Voucher, error) {
	return scanVoucher(q.db.QueryRow(ctx, getVoucherByCodeForUpdate, code))
}

const countVoucherUsageByUser = `SELECT count(*) FROM voucher_usages WHERE voucher_id = $1 AND user_id = $2`

type CountVoucherUsageByUserParams struct {
	VoucherID pgtype.UUID
	UserID    pgtype.UUID
}

func (q *Queries) CountVoucherUsageByUser(ctx context.Context, arg CountVoucherUsageByUserParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countVoucherUsageByUser, arg.VoucherID, arg.UserID).Scan(&count)
	return count, err
}

const getVoucherUsageByOrder = `SELECT id, voucher_id, user_id, order_id, amount, created_at
FROM voucher_usages WHERE voucher_id = $1 AND order_id = $2`

type GetVoucherUsageByOrderParams struct {
	VoucherID pgtype.UUID
	OrderID   pgtype.UUID
}

func (q *Queries) GetVoucherUsageByOrder(ctx context.Context, arg GetVoucherUsageByOrderParams) (VoucherUsage, error) {
	var (
		u      VoucherUsage
		amount pgtype.Numeric
	)
	err := q.db.QueryRow(ctx, getVoucherUsageByOrder, arg.VoucherID, arg.OrderID).
		Scan(&u.ID, &u.VoucherID, &u.UserID, &u.OrderID, &amount, &u.CreatedAt)
	if err != nil {
		return VoucherUsage{}, err
	}
	u.Amount = Decimal(amount)
	return u, nil
}

const insertVoucherUsage = `INSERT INTO voucher_usages (voucher_id, user_id, order_id, amount) VALUES ($1, $2, $3, $4)`

type InsertVoucherUsageParams struct {
	VoucherID pgtype.UUID
	UserID    pgtype.UUID
	OrderID   pgtype.UUID
	Amount    decimal.Decimal
}

func (q *Queries) InsertVoucherUsage(ctx context.Context, arg InsertVoucherUsageParams) error {
	_, err := q.db.Exec(ctx, insertVoucherUsage, arg.VoucherID, arg.UserID, arg.OrderID, Numeric(arg.Amount))
	return err
}

const increaseVoucherUsedCount = `UPDATE vouchers SET used_count = used_count + 1 WHERE id = $1`

func (q *Queries) IncreaseVoucherUsedCount(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, increaseVoucherUsedCount, id)
	return err
}
