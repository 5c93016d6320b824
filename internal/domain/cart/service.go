package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/rivamart/storefront/internal/domain/catalog"
)

// ErrInvalidItem is returned when a line item is structurally incomplete.
var ErrInvalidItem = errors.New("invalid item structure")

// ErrItemNotFound is returned when updating a line that is not in the cart.
var ErrItemNotFound = errors.New("item not in cart")

// StockError rejects an add or quantity update that exceeds live stock.
type StockError struct {
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("only %d of %q in stock (requested %d)", e.Available, e.Name, e.Requested)
}

// StockIssue describes one understocked line in a batch validation.
type StockIssue struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Reason    string `json:"reason"`
}

// ValidationResult is the outcome of a batch stock pre-check. It mutates
// nothing; pricing at checkout remains the authoritative check.
type ValidationResult struct {
	Valid       bool         `json:"valid"`
	StockIssues []StockIssue `json:"stockIssues"`
	ValidItems  []Item       `json:"validItems"`
}

// Service implements cart mutations with live stock validation.
type Service struct {
	carts    Repository
	products catalog.Repository
}

// NewService creates a cart Service backed by the given stores.
func NewService(carts Repository, products catalog.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Get returns the user's current cart.
func (s *Service) Get(ctx context.Context, userID string) ([]Item, error) {
	return s.carts.Get(ctx, userID)
}

// AddItem merges the item into the user's cart, validating the resulting
// quantity against live variant stock.
func (s *Service) AddItem(ctx context.Context, userID string, item Item) ([]Item, error) {
	if !item.Valid() {
		return nil, ErrInvalidItem
	}

	items, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	idx := -1
	for i := range items {
		if sameLine(items[i], item) {
			idx = i
			break
		}
	}

	// Validate the merged line before touching the stored slice, so a
	// rejected merge leaves the cart untouched.
	line := item
	if idx >= 0 {
		line = items[idx]
		line.Quantity += item.Quantity
	}
	if err := s.checkStock(ctx, line); err != nil {
		return nil, err
	}

	if idx >= 0 {
		items[idx] = line
	} else {
		items = append(items, line)
	}

	if err := s.carts.Save(ctx, userID, items); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return items, nil
}

// UpdateQuantity sets a line's quantity after revalidating it against live stock.
func (s *Service) UpdateQuantity(ctx context.Context, userID string, variant Item) ([]Item, error) {
	if variant.ProductID == "" || variant.Quantity <= 0 ||
		variant.Variant.Color == "" || variant.Variant.Size == "" {
		return nil, ErrInvalidItem
	}

	items, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	idx := -1
	for i := range items {
		if sameLine(items[i], variant) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrItemNotFound
	}

	line := items[idx]
	line.Quantity = variant.Quantity
	if err := s.checkStock(ctx, line); err != nil {
		return nil, err
	}
	items[idx] = line

	if err := s.carts.Save(ctx, userID, items); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return items, nil
}

// ValidateStock batch-checks items against live stock without mutating
// anything. All products are fetched in a single query.
func (s *Service) ValidateStock(ctx context.Context, items []Item) (*ValidationResult, error) {
	result := &ValidationResult{
		StockIssues: []StockIssue{},
		ValidItems:  []Item{},
	}
	if len(items) == 0 {
		result.Valid = true
		return result, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !item.Valid() {
			return nil, ErrInvalidItem
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*catalog.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			result.StockIssues = append(result.StockIssues, StockIssue{
				ProductID: item.ProductID,
				Name:      item.Name,
				Color:     item.Variant.Color,
				Size:      item.Variant.Size,
				Requested: item.Quantity,
				Reason:    "product no longer available",
			})
			continue
		}
		v, ok := p.FindVariant(item.Variant.Color, item.Variant.Size)
		if !ok {
			result.StockIssues = append(result.StockIssues, StockIssue{
				ProductID: item.ProductID,
				Name:      p.Name,
				Color:     item.Variant.Color,
				Size:      item.Variant.Size,
				Requested: item.Quantity,
				Reason:    "variant no longer available",
			})
			continue
		}
		if v.Stock < item.Quantity {
			result.StockIssues = append(result.StockIssues, StockIssue{
				ProductID: item.ProductID,
				Name:      p.Name,
				Color:     item.Variant.Color,
				Size:      item.Variant.Size,
				Requested: item.Quantity,
				Available: v.Stock,
				Reason:    "insufficient stock",
			})
			continue
		}
		result.ValidItems = append(result.ValidItems, item)
	}

	result.Valid = len(result.StockIssues) == 0
	return result, nil
}

// Clear removes the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.carts.Clear(ctx, userID)
}

func (s *Service) checkStock(ctx context.Context, item Item) error {
	p, err := s.products.GetByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.ErrNotFound
		}
		return errors.Wrapf(err, "get product %s", item.ProductID)
	}
	v, ok := p.FindVariant(item.Variant.Color, item.Variant.Size)
	if !ok {
		return catalog.ErrNotFound
	}
	if v.Stock < item.Quantity {
		return &StockError{Name: p.Name, Requested: item.Quantity, Available: v.Stock}
	}
	return nil
}

func sameLine(a, b Item) bool {
	return a.ProductID == b.ProductID &&
		a.Variant.Color == b.Variant.Color &&
		a.Variant.Size == b.Variant.Size
}
