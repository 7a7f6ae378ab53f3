package catalog

import "strings"

// Product is a catalog entry as the API returns it.
type Product struct {
	ID                 int      `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Price              float64  `json:"price"`
	DiscountPercentage float64  `json:"discountPercentage"`
	Rating             float64  `json:"rating"`
	Stock              int      `json:"stock"`
	Tags               []string `json:"tags"`
	Brand              string   `json:"brand"`
	SKU                string   `json:"sku"`
	Weight             float64  `json:"weight"`
	AvailabilityStatus string   `json:"availabilityStatus"`
	Thumbnail          string   `json:"thumbnail"`
	Images             []string `json:"images"`
}

// DiscountedPrice returns the price after the advertised discount.
func (p Product) DiscountedPrice() float64 {
	return p.Price - p.Savings()
}

// Savings returns the absolute amount the discount takes off.
func (p Product) Savings() float64 {
	return p.Price * p.DiscountPercentage / 100
}

// InStock reports whether any units remain.
func (p Product) InStock() bool { return p.Stock > 0 }

// LowStock reports whether the remaining units are at or under threshold.
func (p Product) LowStock(threshold int) bool {
	return p.Stock > 0 && p.Stock <= threshold
}

// Discounted reports whether the product carries any discount.
func (p Product) Discounted() bool { return p.DiscountPercentage > 0 }

// HighlyRated reports whether the rating meets threshold.
func (p Product) HighlyRated(threshold float64) bool {
	return p.Rating >= threshold
}

// HasTag reports whether the product carries the tag, case-insensitively.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// FirstImage returns the first gallery image, falling back to the
// thumbnail.
func (p Product) FirstImage() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return p.Thumbnail
}
