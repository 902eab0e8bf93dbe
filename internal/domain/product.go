package domain

import (
	"time"

	"github.com/google/uuid"
)

// Specification is a single {name, value} pair shown on the product page
type Specification struct {
	Name  string `json:"name" bson:"name"`
	Value string `json:"value" bson:"value"`
}

// Review is a customer review attached to a product
type Review struct {
	User    string  `json:"user" bson:"user"`
	Rating  float64 `json:"rating" bson:"rating"`
	Comment string  `json:"comment" bson:"comment"`
	Date    string  `json:"date" bson:"date"`
}

// Product represents a product in the catalog
type Product struct {
	ID              string          `json:"id" bson:"_id"`
	Name            string          `json:"name" bson:"name"`
	Description     string          `json:"description" bson:"description"`
	LongDescription string          `json:"longDescription,omitempty" bson:"long_description,omitempty"`
	Price           float64         `json:"price" bson:"price"`
	Category        string          `json:"category" bson:"category"`
	Subcategory     string          `json:"subcategory,omitempty" bson:"subcategory,omitempty"`
	InStock         bool            `json:"inStock" bson:"in_stock"`
	Featured        bool            `json:"featured" bson:"featured"`
	Rating          float64         `json:"rating" bson:"rating"`
	Images          []string        `json:"images" bson:"images"`
	Specifications  []Specification `json:"specifications" bson:"specifications"`
	Reviews         []Review        `json:"reviews" bson:"reviews"`
	CreatedAt       time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" bson:"updated_at"`
}

// EnsureID assigns a fresh UUID when the product id is missing or not a UUID.
// It reports whether the id changed.
func (p *Product) EnsureID() bool {
	if IsUUID(p.ID) {
		return false
	}
	p.ID = uuid.NewString()
	return true
}

// Normalize replaces nil slices with empty ones and clamps rating and price
func (p *Product) Normalize() {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Specifications == nil {
		p.Specifications = []Specification{}
	}
	if p.Reviews == nil {
		p.Reviews = []Review{}
	}
	if p.Price < 0 {
		p.Price = 0
	}
	switch {
	case p.Rating < 0:
		p.Rating = 0
	case p.Rating > 5:
		p.Rating = 5
	}
}

// LastChange returns UpdatedAt, falling back to CreatedAt when unset
func (p *Product) LastChange() time.Time {
	if !p.UpdatedAt.IsZero() {
		return p.UpdatedAt
	}
	return p.CreatedAt
}

// IsUUID reports whether s parses as a UUID
func IsUUID(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
