package catalog

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"erp/ecommerce/quote-storefront/internal/store"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	// ErrConflict covers duplicate slugs/SKUs and deleting a brand or
	// category that products still reference.
	ErrConflict = errors.New("catalog: conflict")
)

type Brand struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Category struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	LongDescription string    `json:"long_description,omitempty"`
	Image           string    `json:"image,omitempty"`
	DisplayOrder    int       `json:"display_order"`
	CreatedAt       time.Time `json:"created_at"`
}

// Variation is a size option of a product. A nil Price means price on
// application.
type Variation struct {
	Size         string           `json:"size"`
	Label        string           `json:"label"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	SKU          string           `json:"sku,omitempty"`
	DisplayOrder int              `json:"display_order"`
}

type Product struct {
	ID          string           `json:"id"`
	Slug        string           `json:"slug"`
	SKU         string           `json:"sku"`
	Name        string           `json:"name"`
	ShortName   string           `json:"short_name,omitempty"`
	BrandID     string           `json:"brand_id"`
	CategoryID  string           `json:"category_id"`
	Description string           `json:"description"`
	LeadTime    string           `json:"lead_time,omitempty"`
	Video       string           `json:"video,omitempty"`
	PriceVaries bool             `json:"price_varies"`
	PriceNote   string           `json:"price_note,omitempty"`
	BasePrice   *decimal.Decimal `json:"base_price,omitempty"`
	Active      bool             `json:"active"`
	Variations  []Variation      `json:"variations"`
	Promotion   *Promotion       `json:"promotion,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Variation returns the variation matching size by size or label,
// case-insensitively.
func (p Product) Variation(size string) (Variation, bool) {
	size = strings.TrimSpace(size)
	for _, v := range p.Variations {
		if strings.EqualFold(v.Size, size) || strings.EqualFold(v.Label, size) {
			return v, true
		}
	}
	return Variation{}, false
}

type BrandInput struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryInput struct {
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	LongDescription string `json:"long_description"`
	Image           string `json:"image"`
	DisplayOrder    int    `json:"display_order"`
}

type ProductInput struct {
	Slug        string           `json:"slug"`
	SKU         string           `json:"sku"`
	Name        string           `json:"name"`
	ShortName   string           `json:"short_name"`
	BrandID     string           `json:"brand_id"`
	CategoryID  string           `json:"category_id"`
	Description string           `json:"description"`
	LeadTime    string           `json:"lead_time"`
	Video       string           `json:"video"`
	PriceVaries *bool            `json:"price_varies"`
	PriceNote   string           `json:"price_note"`
	BasePrice   *decimal.Decimal `json:"base_price"`
	Active      *bool            `json:"active"`
	Variations  []Variation      `json:"variations"`
}

// ProductPatch updates only the fields that are set.
type ProductPatch struct {
	Slug        *string          `json:"slug"`
	SKU         *string          `json:"sku"`
	Name        *string          `json:"name"`
	ShortName   *string          `json:"short_name"`
	BrandID     *string          `json:"brand_id"`
	CategoryID  *string          `json:"category_id"`
	Description *string          `json:"description"`
	LeadTime    *string          `json:"lead_time"`
	Video       *string          `json:"video"`
	PriceVaries *bool            `json:"price_varies"`
	PriceNote   *string          `json:"price_note"`
	BasePrice   *decimal.Decimal `json:"base_price"`
	ClearPrice  bool             `json:"clear_base_price"`
	Active      *bool            `json:"active"`
	Variations  *[]Variation     `json:"variations"`
}

func (p ProductPatch) empty() bool {
	return p.Slug == nil && p.SKU == nil && p.Name == nil && p.ShortName == nil &&
		p.BrandID == nil && p.CategoryID == nil && p.Description == nil &&
		p.LeadTime == nil && p.Video == nil && p.PriceVaries == nil &&
		p.PriceNote == nil && p.BasePrice == nil && !p.ClearPrice &&
		p.Active == nil && p.Variations == nil
}

// ProductFilter narrows ListProducts. Empty fields match everything.
type ProductFilter struct {
	BrandID    string
	CategoryID string
	ActiveOnly bool
	Query      string
}

func (f ProductFilter) matches(p Product) bool {
	if f.BrandID != "" && p.BrandID != f.BrandID {
		return false
	}
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	if f.ActiveOnly && !p.Active {
		return false
	}
	if q := strings.ToLower(f.Query); q != "" {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(p.SKU), q)
	}
	return true
}

type ProductList struct {
	Items      []Product `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
	Cached     bool      `json:"cached"`
}

// ResolvedItem is a catalog product priced for a quote line.
type ResolvedItem struct {
	ProductID    string
	SKU          string
	VariationSKU string
	Name         string
	BrandName    string
	Size         string
	SizeLabel    string
	UnitPrice    *decimal.Decimal
	LeadTime     string
}

// Slugify lower-cases s and joins runs of letters and digits with "-".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

func cleanSlug(slug, name string) string {
	if s := Slugify(slug); s != "" {
		return s
	}
	return Slugify(name)
}

func (in BrandInput) build(now time.Time) (Brand, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Brand{}, store.Invalid("name is required")
	}
	return Brand{
		Slug:        cleanSlug(in.Slug, name),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
	}, nil
}

func (in CategoryInput) build(now time.Time) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, store.Invalid("name is required")
	}
	return Category{
		Slug:            cleanSlug(in.Slug, name),
		Name:            name,
		Description:     strings.TrimSpace(in.Description),
		LongDescription: strings.TrimSpace(in.LongDescription),
		Image:           strings.TrimSpace(in.Image),
		DisplayOrder:    in.DisplayOrder,
		CreatedAt:       now,
	}, nil
}

func (in ProductInput) build(now time.Time) (Product, error) {
	p := Product{
		Slug:        cleanSlug(in.Slug, in.Name),
		SKU:         strings.TrimSpace(in.SKU),
		Name:        strings.TrimSpace(in.Name),
		ShortName:   strings.TrimSpace(in.ShortName),
		BrandID:     strings.TrimSpace(in.BrandID),
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Description: strings.TrimSpace(in.Description),
		LeadTime:    strings.TrimSpace(in.LeadTime),
		Video:       strings.TrimSpace(in.Video),
		PriceVaries: true,
		PriceNote:   strings.TrimSpace(in.PriceNote),
		BasePrice:   in.BasePrice,
		Active:      true,
		Variations:  in.Variations,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.PriceVaries != nil {
		p.PriceVaries = *in.PriceVaries
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	return p, p.validate()
}

func (p *ProductPatch) apply(dst *Product) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	if p.Slug != nil {
		dst.Slug = Slugify(*p.Slug)
	}
	set(&dst.SKU, p.SKU)
	set(&dst.Name, p.Name)
	set(&dst.ShortName, p.ShortName)
	set(&dst.BrandID, p.BrandID)
	set(&dst.CategoryID, p.CategoryID)
	set(&dst.Description, p.Description)
	set(&dst.LeadTime, p.LeadTime)
	set(&dst.Video, p.Video)
	set(&dst.PriceNote, p.PriceNote)
	if p.PriceVaries != nil {
		dst.PriceVaries = *p.PriceVaries
	}
	if p.BasePrice != nil {
		dst.BasePrice = p.BasePrice
	}
	if p.ClearPrice {
		dst.BasePrice = nil
	}
	if p.Active != nil {
		dst.Active = *p.Active
	}
	if p.Variations != nil {
		dst.Variations = *p.Variations
	}
}

func (p *Product) validate() error {
	switch {
	case p.Name == "":
		return store.Invalid("name is required")
	case p.Slug == "":
		return store.Invalid("slug is required")
	case p.SKU == "":
		return store.Invalid("sku is required")
	case p.BrandID == "":
		return store.Invalid("brand_id is required")
	case p.CategoryID == "":
		return store.Invalid("category_id is required")
	}
	if p.BasePrice != nil && p.BasePrice.IsNegative() {
		return store.Invalid("base_price must not be negative")
	}
	seen := make(map[string]bool, len(p.Variations))
	for i := range p.Variations {
		v := &p.Variations[i]
		v.Size = strings.TrimSpace(v.Size)
		v.Label = strings.TrimSpace(v.Label)
		v.SKU = strings.TrimSpace(v.SKU)
		if v.Size == "" {
			return store.Invalid("variation %d: size is required", i+1)
		}
		if v.Label == "" {
			v.Label = v.Size
		}
		key := strings.ToLower(v.Size)
		if seen[key] {
			return store.Invalid("duplicate variation size %q", v.Size)
		}
		seen[key] = true
		if v.Price != nil && v.Price.IsNegative() {
			return store.Invalid("variation %s: price must not be negative", v.Size)
		}
	}
	if p.Variations == nil {
		p.Variations = []Variation{}
	}
	return nil
}
