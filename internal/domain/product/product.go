package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is an item listed by an artisan seller.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	SellerID    string
}

// Validate reports whether p can be listed: it needs an ID and a name, and a
// price that is neither negative nor finer than one paisa.
func (p Product) Validate() error {
	switch {
	case p.ID == "" || p.Name == "":
		return errors.Errorf("product %q: id and name are required", p.ID)
	case p.Price.IsNegative():
		return errors.Errorf("product %q: negative price %s", p.ID, p.Price)
	case !p.Price.Equal(p.Price.Round(2)):
		return errors.Errorf("product %q: price %s has more than two decimal places", p.ID, p.Price)
	}
	return nil
}

// Repository stores the product catalog. Order items reference products by ID.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	Upsert(ctx context.Context, p Product) error
}
