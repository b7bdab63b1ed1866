// Package catalog holds the static product and category data for the
// storefront. The catalog is loaded once from an embedded YAML file and is
// read-only afterwards; the cart and recipe layers only ever read it.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data.yaml
var rawData []byte

// Product is a catalog entry. Immutable once loaded.
type Product struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Category    string  `yaml:"category" json:"category"`
	Price       float64 `yaml:"price" json:"price"`
	Unit        string  `yaml:"unit" json:"unit"`
	Image       string  `yaml:"image" json:"image"`
	Description string  `yaml:"description" json:"description"`
	IsPopular   bool    `yaml:"popular" json:"isPopular,omitempty"`
	Calories    int     `yaml:"calories" json:"calories,omitempty"`
}

// Category is a display grouping with an icon glyph.
type Category struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Icon string `yaml:"icon" json:"icon"`
}

type catalogData struct {
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
}

// Catalog is the loaded, immutable product/category set.
type Catalog struct {
	categories []Category
	products   []Product
	byID       map[string]Product
}

// Load parses the embedded catalog data.
func Load() (*Catalog, error) {
	return load(rawData)
}

func load(data []byte) (*Catalog, error) {
	var parsed catalogData
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog data: %w", err)
	}
	if len(parsed.Products) == 0 {
		return nil, fmt.Errorf("catalog data contains no products")
	}

	byID := make(map[string]Product, len(parsed.Products))
	for _, p := range parsed.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog product %q has no id", p.Name)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog product id %q", p.ID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog product %q has negative price", p.ID)
		}
		byID[p.ID] = p
	}

	return &Catalog{
		categories: parsed.Categories,
		products:   parsed.Products,
		byID:       byID,
	}, nil
}

// Categories returns the category list in declaration order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Products returns products filtered by category id. "" or "all" returns
// the full catalog. Order matches the catalog file.
func (c *Catalog) Products(category string) []Product {
	if category == "" || category == "all" {
		out := make([]Product, len(c.products))
		copy(out, c.products)
		return out
	}

	var out []Product
	for _, p := range c.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Product looks up a single product by id.
func (c *Catalog) Product(id string) (Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}
