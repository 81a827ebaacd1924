// Command seed-db applies the schema and upserts the product catalog.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/artisan-checkout/db"
	"github.com/xenking/artisan-checkout/internal/domain/product"
	"github.com/xenking/artisan-checkout/internal/storage/postgres"
	"github.com/xenking/artisan-checkout/internal/storage/sqlite"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	SellerID    string          `json:"seller_id"`
}

func main() {
	var (
		driver       string
		databaseURL  string
		sqlitePath   string
		productsFile string
	)

	flag.StringVar(&driver, "driver", "postgres", "store driver: postgres or sqlite")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&sqlitePath, "sqlite-path", "artisan.db", "SQLite database file")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (embedded catalog if empty)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if driver == "postgres" && databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, driver, databaseURL, sqlitePath, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, driver, databaseURL, sqlitePath, productsFile string) error {
	products, err := readProducts(productsFile)
	if err != nil {
		return err
	}

	var repo product.Repository
	switch driver {
	case "postgres":
		slog.Info("connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		slog.Info("running migrations")
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		repo = postgres.NewProductRepository(pool)

	case "sqlite":
		slog.Info("opening sqlite database", slog.String("path", sqlitePath))
		conn, err := sqlite.Open(sqlitePath)
		if err != nil {
			return errors.Wrap(err, "open sqlite")
		}
		defer func() { _ = sqlite.Close(conn) }()
		repo = sqlite.NewProductStore(conn)

	default:
		return errors.Errorf("unknown driver %q", driver)
	}

	return seedProducts(ctx, repo, products)
}

func readProducts(path string) ([]product.Product, error) {
	data := db.Catalog
	if path != "" {
		slog.Info("reading products file", slog.String("path", path))
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read products file")
		}
		data = b
	} else {
		slog.Info("using embedded catalog")
	}
	return parseProducts(data)
}

func parseProducts(data []byte) ([]product.Product, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	products := make([]product.Product, 0, len(raw))
	for _, r := range raw {
		p := product.Product{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Price:       r.Price,
			ImageURL:    r.ImageURL,
			SellerID:    r.SellerID,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func seedProducts(ctx context.Context, repo product.Repository, products []product.Product) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}
