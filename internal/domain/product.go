package domain

import (
	"html"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"
)

var (
	namePolicy        = bluemonday.StrictPolicy()
	descriptionPolicy = bluemonday.UGCPolicy()
)

// Product is a catalog item. PriceAfterTax is derived from PriceBeforeTax and TaxRate and is
// only ever written by NewProduct and UpdateProduct.
type Product struct {
	ID             string
	Name           string
	Description    string
	CategoryID     *string
	BrandID        *string
	PriceBeforeTax int64
	TaxRate        int
	PriceAfterTax  int64
	Stock          int
	NumReviews     int
	Rating         *float64
	IsFeatured     bool
	Images         []ProductImage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductImage is one entry of a product gallery.
type ProductImage struct {
	URL        string
	ImageName  *string
	DisplayOrd int
}

// ProductInput carries the caller supplied fields for NewProduct.
type ProductInput struct {
	Name           string
	Description    string
	CategoryID     *string
	BrandID        *string
	PriceBeforeTax int64
	TaxRate        int
	Stock          int
	IsFeatured     bool
	Images         []ProductImage
}

// ProductPatch lists optional replacements for UpdateProduct. Nil fields are left untouched.
type ProductPatch struct {
	Name           *string
	Description    *string
	CategoryID     *string
	BrandID        *string
	PriceBeforeTax *int64
	TaxRate        *int
	Stock          *int
	Rating         *float64
	Images         []ProductImage
}

// PriceAfterTax returns ceil(priceBeforeTax * (100 + taxRate) / 100) in integer arithmetic.
func PriceAfterTax(priceBeforeTax int64, taxRate int) int64 {
	gross := priceBeforeTax * int64(100+taxRate)
	return (gross + 99) / 100
}

// NewProduct validates input and builds a product stamped with now.
func NewProduct(input ProductInput, id string, now time.Time) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, validationError(CodeEmptyValue, "id", "product id is required")
	}
	now = now.UTC()
	p := Product{
		ID:             strings.TrimSpace(id),
		Name:           input.Name,
		Description:    input.Description,
		CategoryID:     optionalIDPtr(input.CategoryID),
		BrandID:        optionalIDPtr(input.BrandID),
		PriceBeforeTax: input.PriceBeforeTax,
		TaxRate:        input.TaxRate,
		Stock:          input.Stock,
		IsFeatured:     input.IsFeatured,
		Images:         input.Images,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return normaliseProduct(p)
}

// ChangeStockBy adds delta to the stock, rejecting a negative result.
func ChangeStockBy(p Product, delta int, now time.Time) (Product, error) {
	next := p.Stock + delta
	if next < 0 {
		return Product{}, validationError(CodeInvalidStock, "stock", "stock cannot become negative")
	}
	out := p.Clone()
	out.Stock = next
	out.UpdatedAt = laterThan(p.UpdatedAt, now)
	return out, nil
}

// AddNumReviews counts one more review.
func AddNumReviews(p Product, now time.Time) Product {
	out := p.Clone()
	out.NumReviews++
	out.UpdatedAt = laterThan(p.UpdatedAt, now)
	return out
}

// ChangeIsFeatured sets the featured flag.
func ChangeIsFeatured(p Product, featured bool, now time.Time) Product {
	out := p.Clone()
	out.IsFeatured = featured
	out.UpdatedAt = laterThan(p.UpdatedAt, now)
	return out
}

// UpdateProduct applies patch, revalidates every mutable field and recomputes PriceAfterTax.
// The returned UpdatedAt is strictly later than p.UpdatedAt.
func UpdateProduct(p Product, patch ProductPatch, now time.Time) (Product, error) {
	out := p.Clone()
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}
	if patch.CategoryID != nil {
		out.CategoryID = optionalID(*patch.CategoryID)
	}
	if patch.BrandID != nil {
		out.BrandID = optionalID(*patch.BrandID)
	}
	if patch.PriceBeforeTax != nil {
		out.PriceBeforeTax = *patch.PriceBeforeTax
	}
	if patch.TaxRate != nil {
		out.TaxRate = *patch.TaxRate
	}
	if patch.Stock != nil {
		out.Stock = *patch.Stock
	}
	if patch.Rating != nil {
		r := *patch.Rating
		out.Rating = &r
	}
	if patch.Images != nil {
		out.Images = patch.Images
	}
	out.UpdatedAt = laterThan(p.UpdatedAt, now)
	return normaliseProduct(out)
}

func normaliseProduct(p Product) (Product, error) {
	name := cleanText(namePolicy.Sanitize(norm.NFKC.String(p.Name)))
	if name == "" {
		return Product{}, validationError(CodeEmptyValue, "name", "product name is required")
	}
	p.Name = name
	p.Description = strings.TrimSpace(descriptionPolicy.Sanitize(p.Description))

	if p.PriceBeforeTax < 0 {
		return Product{}, validationError(CodeInvalidPrice, "priceBeforeTax", "price must not be negative")
	}
	if p.TaxRate < 0 {
		return Product{}, validationError(CodeInvalidTaxRate, "taxRate", "tax rate must not be negative")
	}
	if p.Stock < 0 {
		return Product{}, validationError(CodeInvalidStock, "stock", "stock must not be negative")
	}
	if p.NumReviews < 0 {
		return Product{}, validationError(CodeInvalidValue, "numReviews", "review count must not be negative")
	}
	if err := validateOptionalID("categoryId", p.CategoryID); err != nil {
		return Product{}, err
	}
	if err := validateOptionalID("brandId", p.BrandID); err != nil {
		return Product{}, err
	}

	images := make([]ProductImage, 0, len(p.Images))
	for _, img := range p.Images {
		url := strings.TrimSpace(img.URL)
		if url == "" {
			return Product{}, validationError(CodeEmptyValue, "images.url", "image url is required")
		}
		img.URL = url
		images = append(images, img)
	}
	slices.SortStableFunc(images, func(a, b ProductImage) int {
		return a.DisplayOrd - b.DisplayOrd
	})
	p.Images = images
	if len(images) == 0 {
		p.Images = nil
	}

	p.PriceAfterTax = PriceAfterTax(p.PriceBeforeTax, p.TaxRate)
	return p, nil
}

func validateOptionalID(field string, id *string) error {
	if id == nil {
		return nil
	}
	if _, err := ulid.ParseStrict(*id); err != nil {
		e := validationError(CodeInvalidValue, field, "must be a valid identifier")
		e.Err = err
		return e
	}
	return nil
}

func optionalID(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalIDPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	return optionalID(*raw)
}

// cleanText undoes the entity escaping bluemonday applies to plain text.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

// Clone returns a deep copy.
func (p Product) Clone() Product {
	out := p
	if p.CategoryID != nil {
		v := *p.CategoryID
		out.CategoryID = &v
	}
	if p.BrandID != nil {
		v := *p.BrandID
		out.BrandID = &v
	}
	if p.Rating != nil {
		v := *p.Rating
		out.Rating = &v
	}
	if p.Images != nil {
		out.Images = make([]ProductImage, len(p.Images))
		copy(out.Images, p.Images)
	}
	return out
}

// laterThan returns now, or prev plus one microsecond when now does not move forward.
// Microseconds keep the bump visible after a round trip through Postgres timestamps.
func laterThan(prev, now time.Time) time.Time {
	now = now.UTC()
	if now.After(prev) {
		return now
	}
	return prev.UTC().Add(time.Microsecond)
}
