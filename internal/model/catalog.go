package model

import "time"

// Category groups tower variants, e.g. "Monopole Tower".
type Category struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail_url"`
	VariantCount int       `json:"variant_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StructuralType is the construction style of a tower variant.
type StructuralType string

const (
	StructuralSelfSupporting StructuralType = "self-supporting"
	StructuralGuyed          StructuralType = "guyed"
	StructuralMonopole       StructuralType = "monopole"
)

// Valid reports whether t is one of the known structural types.
func (t StructuralType) Valid() bool {
	switch t {
	case StructuralSelfSupporting, StructuralGuyed, StructuralMonopole:
		return true
	default:
		return false
	}
}

// Variant is a specific tower model within a Category.
type Variant struct {
	ID               string         `json:"id"`
	TowerCode        string         `json:"tower_code"`
	Height           float64        `json:"height"`
	StructuralType   StructuralType `json:"structural_type"`
	LoadClass        string         `json:"load_class"`
	EngineeringNotes string         `json:"engineering_notes"`
	CategoryID       string         `json:"category_id"`
	CategoryName     string         `json:"category_name,omitempty"`
	DocumentCount    int            `json:"document_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// CategoryDetail is a category together with its variants ordered by height.
type CategoryDetail struct {
	Category
	Variants []Variant `json:"variants"`
}

// VariantDetail is a variant together with its active document, if any.
type VariantDetail struct {
	Variant
	ActiveDocument *Document `json:"active_document"`
}

// SearchResult holds the matches of a catalog search.
type SearchResult struct {
	Query      string     `json:"query"`
	Variants   []Variant  `json:"variants"`
	Categories []Category `json:"categories"`
}

// Dashboard summarises the catalog for the admin landing page.
type Dashboard struct {
	CategoryCount    int        `json:"category_count"`
	VariantCount     int        `json:"variant_count"`
	DocumentCount    int        `json:"document_count"`
	RecentCategories []Category `json:"recent_categories"`
	RecentVariants   []Variant  `json:"recent_variants"`
}
