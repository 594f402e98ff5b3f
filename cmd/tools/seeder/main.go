package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/db"
)

// productNamespace keeps seeded product ids stable across runs.
var productNamespace = uuid.MustParse("6f1c7c1e-6a0e-4c1b-9d9c-3c1f6b0f0a11")

type product struct {
	Title   string
	Price   string
	TaxRate string
	Stock   int
	Status  string
}

type voucherSeed struct {
	Code         string
	Kind         string
	Value        string
	MaxDiscount  *string
	MinOrder     string
	ValidFrom    *time.Time
	ValidTo      *time.Time
	UsageLimit   *int
	PerUserLimit *int
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("tool", "seeder").Logger()
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	if err := db.Migrate(dbURL); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := seedProducts(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("seed products")
	}
	log.Info().Int("count", len(products)).Msg("products seeded")

	if err := seedVouchers(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("seed vouchers")
	}
	log.Info().Int("count", len(vouchers())).Msg("vouchers seeded")
}

var products = []product{
	{"Kopi Arabika Gayo 250g", "100.00", "7", 200, "active"},
	{"Mechanical Keyboard TKL", "500.00", "10", 25, "active"},
	{"Buku Tulis A5 (isi 10)", "45.50", "0", 500, "active"},
	{"Headphone Bluetooth", "850.00", "10", 3, "active"},
	{"Teh Melati 100 sachet", "62.25", "7", 120, "active"},
	{"Kaos Polos Hitam L", "79.90", "10", 0, "active"},
	{"Lampu Meja LED", "215.00", "10", 40, "inactive"},
}

func productID(title string) uuid.UUID {
	return uuid.NewSHA1(productNamespace, []byte(title))
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
			INSERT INTO products (id, title, price, tax_rate, stock, status)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				price = EXCLUDED.price,
				tax_rate = EXCLUDED.tax_rate,
				stock = EXCLUDED.stock,
				status = EXCLUDED.status,
				updated_at = now()`,
			productID(p.Title).String(), p.Title, p.Price, p.TaxRate, p.Stock, p.Status)
	}
	return pool.SendBatch(ctx, batch).Close()
}

func ptr[T any](v T) *T { return &v }

func vouchers() []voucherSeed {
	now := time.Now().UTC()
	return []voucherSeed{
		{Code: "HEMAT10", Kind: "percentage", Value: "10", MaxDiscount: ptr("50.00"), MinOrder: "100.00"},
		{Code: "POTONG25", Kind: "fixed_amount", Value: "25.00", MinOrder: "0"},
		{Code: "SEKALI", Kind: "percentage", Value: "15", MinOrder: "0", PerUserLimit: ptr(1)},
		{Code: "TERBATAS", Kind: "fixed_amount", Value: "40.00", MinOrder: "200.00", UsageLimit: ptr(100)},
		{Code: "KEDALUWARSA", Kind: "percentage", Value: "20", MinOrder: "0", ValidTo: ptr(now.AddDate(0, -1, 0))},
		{Code: "SEGERA", Kind: "percentage", Value: "20", MinOrder: "0", ValidFrom: ptr(now.AddDate(0, 1, 0))},
	}
}

func seedVouchers(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	for _, v := range vouchers() {
		batch.Queue(`
			INSERT INTO vouchers (code, kind, value, max_discount, min_order, valid_from, valid_to, usage_limit, per_user_limit)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8, $9)
			ON CONFLICT (code) DO UPDATE SET
				kind = EXCLUDED.kind,
				value = EXCLUDED.value,
				max_discount = EXCLUDED.max_discount,
				min_order = EXCLUDED.min_order,
				valid_from = EXCLUDED.valid_from,
				valid_to = EXCLUDED.valid_to,
				usage_limit = EXCLUDED.usage_limit,
				per_user_limit = EXCLUDED.per_user_limit`,
			v.Code, v.Kind, v.Value, v.MaxDiscount, v.MinOrder, v.ValidFrom, v.ValidTo, v.UsageLimit, v.PerUserLimit)
	}
	return pool.SendBatch(ctx, batch).Close()
}
