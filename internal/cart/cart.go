// Package cart holds the client-side shopping cart. The Service owns the
// current Snapshot; every operation returns a new Snapshot and never mutates
// one that was handed out.
package cart

import (
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidProduct is returned by Add for a product without an ID or with a
// negative price.
var ErrInvalidProduct = errors.New("invalid product")

// Product is the catalog data captured when an item is added.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageURL string
}

// Item is one cart line. Quantity is at least 1.
type Item struct {
	Product
	Quantity int
}

// LineTotal returns price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Snapshot is an immutable view of the cart.
type Snapshot struct {
	items []Item
}

// Items returns a copy of the cart lines in insertion order.
func (s Snapshot) Items() []Item {
	return slices.Clone(s.items)
}

// Len returns the number of distinct lines.
func (s Snapshot) Len() int { return len(s.items) }

// IsEmpty reports whether the cart has no lines.
func (s Snapshot) IsEmpty() bool { return len(s.items) == 0 }

// Quantity returns the quantity of product id, or 0.
func (s Snapshot) Quantity(id string) int {
	if i := s.index(id); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

// Subtotal returns Σ price × quantity.
func (s Snapshot) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range s.items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Total returns the subtotal plus the flat shipping fee. An empty cart costs
// nothing.
func (s Snapshot) Total(shipping decimal.Decimal) decimal.Decimal {
	if s.IsEmpty() {
		return decimal.Zero
	}
	return s.Subtotal().Add(shipping)
}

func (s Snapshot) index(id string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}

// with returns a snapshot whose line i has quantity q; q < 1 drops the line.
func (s Snapshot) with(i, q int) Snapshot {
	if q < 1 {
		return Snapshot{items: slices.Delete(slices.Clone(s.items), i, i+1)}
	}
	items := slices.Clone(s.items)
	items[i].Quantity = q
	return Snapshot{items: items}
}

// Service is the single owner of the cart state.
type Service struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewService returns a Service with an empty cart.
func NewService() *Service {
	return &Service{}
}

// Snapshot returns the current cart.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Add puts one unit of p in the cart, incrementing the line if p is already
// there.
func (s *Service) Add(p Product) (Snapshot, error) {
	if p.ID == "" || p.Price.IsNegative() {
		return s.Snapshot(), errors.Wrapf(ErrInvalidProduct, "product %q", p.ID)
	}
	return s.update(func(cur Snapshot) Snapshot {
		if i := cur.index(p.ID); i >= 0 {
			return cur.with(i, cur.items[i].Quantity+1)
		}
		items := make([]Item, len(cur.items), len(cur.items)+1)
		copy(items, cur.items)
		return Snapshot{items: append(items, Item{Product: p, Quantity: 1})}
	}), nil
}

// Remove drops the line for id.
func (s *Service) Remove(id string) Snapshot {
	return s.update(func(cur Snapshot) Snapshot {
		if i := cur.index(id); i >= 0 {
			return cur.with(i, 0)
		}
		return cur
	})
}

// Increment adds one unit to the line for id. Unknown ids are ignored.
func (s *Service) Increment(id string) Snapshot {
	return s.update(func(cur Snapshot) Snapshot {
		if i := cur.index(id); i >= 0 {
			return cur.with(i, cur.items[i].Quantity+1)
		}
		return cur
	})
}

// Decrement removes one unit from the line for id; a line at quantity 1 is
// removed.
func (s *Service) Decrement(id string) Snapshot {
	return s.update(func(cur Snapshot) Snapshot {
		if i := cur.index(id); i >= 0 {
			return cur.with(i, cur.items[i].Quantity-1)
		}
		return cur
	})
}

// Clear empties the cart.
func (s *Service) Clear() Snapshot {
	return s.update(func(Snapshot) Snapshot { return Snapshot{} })
}

func (s *Service) update(fn func(Snapshot) Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = fn(s.snap)
	return s.snap
}
