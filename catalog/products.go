package catalog

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/galdoway/apisdk/rest"
)

// Products is the product resource client. The catalog API searches
// server-side, so Search issues one request instead of fetching and
// filtering; the derivation helpers below fetch and filter where the API
// has no native endpoint.
type Products struct {
	client *rest.Client
}

// NewProducts wraps a transport.
func NewProducts(client *rest.Client) *Products {
	return &Products{client: client}
}

func pageQuery(limit, skip int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	return q
}

func (p *Products) list(ctx context.Context, endpoint string, query url.Values) ([]Product, error) {
	resp, err := p.client.Get(ctx, endpoint, query)
	if err != nil {
		return nil, err
	}
	var products []Product
	if err := resp.DecodeItems(&products); err != nil {
		return nil, err
	}
	return products, nil
}

// All returns every product. The API caps pages at its own default; pass
// limit 0 to take that default.
func (p *Products) All(ctx context.Context, limit int) ([]Product, error) {
	return p.list(ctx, "/products", pageQuery(limit, 0))
}

// Find fetches one product by id.
func (p *Products) Find(ctx context.Context, id int) (Product, error) {
	resp, err := p.client.Get(ctx, fmt.Sprintf("/products/%d", id), nil)
	if err != nil {
		if rest.IsNotFound(err) {
			return Product{}, fmt.Errorf("product %d: %w", id, err)
		}
		return Product{}, err
	}
	var product Product
	if err := resp.DecodeItem(&product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// Paginate returns one page plus the envelope, so callers can read the
// pagination metadata alongside the items.
func (p *Products) Paginate(ctx context.Context, limit, skip int) ([]Product, *rest.Pagination, error) {
	resp, err := p.client.Get(ctx, "/products", pageQuery(limit, skip))
	if err != nil {
		return nil, nil, err
	}
	var products []Product
	if err := resp.DecodeItems(&products); err != nil {
		return nil, nil, err
	}
	return products, resp.Pagination(), nil
}

// Search runs the API's native full-text search.
func (p *Products) Search(ctx context.Context, query string, limit, skip int) ([]Product, error) {
	q := pageQuery(limit, skip)
	q.Set("q", query)
	return p.list(ctx, "/products/search", q)
}

// Categories lists the category slugs.
func (p *Products) Categories(ctx context.Context) ([]string, error) {
	resp, err := p.client.Get(ctx, "/products/category-list", nil)
	if err != nil {
		return nil, err
	}
	list, ok := resp.Data().([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: category list is not an array", rest.ErrInvalidResponse)
	}
	categories := make([]string, 0, len(list))
	for _, elem := range list {
		if s, ok := elem.(string); ok {
			categories = append(categories, s)
		}
	}
	return categories, nil
}

// ByCategory lists products in one category.
func (p *Products) ByCategory(ctx context.Context, category string, limit, skip int) ([]Product, error) {
	return p.list(ctx, "/products/category/"+url.PathEscape(category), pageQuery(limit, skip))
}

// SortBy lists products ordered server-side by a field. Order is "asc" or
// "desc".
func (p *Products) SortBy(ctx context.Context, field, order string, limit, skip int) ([]Product, error) {
	q := pageQuery(limit, skip)
	q.Set("sortBy", field)
	q.Set("order", order)
	return p.list(ctx, "/products", q)
}

// Select limits the returned fields to those named; unselected struct
// fields decode to their zero values.
func (p *Products) Select(ctx context.Context, fields []string, limit, skip int) ([]Product, error) {
	q := pageQuery(limit, skip)
	q.Set("select", strings.Join(fields, ","))
	return p.list(ctx, "/products", q)
}

// Create submits a new product and returns the stored entity. The demo
// API echoes the entity with an assigned id rather than persisting it.
func (p *Products) Create(ctx context.Context, product Product) (Product, error) {
	resp, err := p.client.Post(ctx, "/products/add", product)
	if err != nil {
		return Product{}, err
	}
	var created Product
	if err := resp.DecodeItem(&created); err != nil {
		return Product{}, err
	}
	return created, nil
}

// Update patches a product's fields by id and returns the merged entity.
func (p *Products) Update(ctx context.Context, id int, fields map[string]interface{}) (Product, error) {
	resp, err := p.client.Patch(ctx, fmt.Sprintf("/products/%d", id), fields)
	if err != nil {
		return Product{}, err
	}
	var updated Product
	if err := resp.DecodeItem(&updated); err != nil {
		return Product{}, err
	}
	return updated, nil
}

// Delete removes a product by id.
func (p *Products) Delete(ctx context.Context, id int) error {
	_, err := p.client.Delete(ctx, fmt.Sprintf("/products/%d", id), nil)
	return err
}

// Derivations with no native endpoint: fetch one page and filter locally.
// The transport cache keeps the underlying fetch shared between them.

// Discounted returns products carrying at least minDiscount percent off,
// highest discount first.
func (p *Products) Discounted(ctx context.Context, minDiscount float64, limit int) ([]Product, error) {
	products, err := p.All(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []Product
	for _, product := range products {
		if product.DiscountPercentage >= minDiscount {
			out = append(out, product)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DiscountPercentage > out[j].DiscountPercentage
	})
	return out, nil
}

// ByPriceRange returns products priced within [min, max].
func (p *Products) ByPriceRange(ctx context.Context, min, max float64, limit int) ([]Product, error) {
	products, err := p.All(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []Product
	for _, product := range products {
		if product.Price >= min && product.Price <= max {
			out = append(out, product)
		}
	}
	return out, nil
}

// HighRated returns products rated at or above minRating, best first.
func (p *Products) HighRated(ctx context.Context, minRating float64, limit int) ([]Product, error) {
	products, err := p.All(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []Product
	for _, product := range products {
		if product.Rating >= minRating {
			out = append(out, product)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rating > out[j].Rating
	})
	return out, nil
}

// LowStock returns in-stock products at or under threshold units.
func (p *Products) LowStock(ctx context.Context, threshold, limit int) ([]Product, error) {
	products, err := p.All(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []Product
	for _, product := range products {
		if product.LowStock(threshold) {
			out = append(out, product)
		}
	}
	return out, nil
}
