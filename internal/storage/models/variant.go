package models

import "strings"

// Costume is a cosmetic form of a species.
type Costume struct {
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	ShinyImage   string `json:"shiny_image,omitempty"`
	DateReleased string `json:"date_released,omitempty"`
}

// Variant is one catalog entry: a species in a particular form, costume or
// shininess. VariantID is stable across catalog refreshes.
type Variant struct {
	VariantID     string    `json:"variant_id"`
	PokemonID     int       `json:"pokemon_id"`
	Name          string    `json:"name"`
	Form          *string   `json:"form,omitempty"` // Nullable
	VariantType   string    `json:"variantType"`    // "default", "shiny", "costume", "shadow", ...
	PokedexNumber int       `json:"pokedex_number"`
	CurrentImage  string    `json:"currentImage,omitempty"`
	FemaleImage   string    `json:"female_image,omitempty"`
	Rarity        string    `json:"rarity,omitempty"`
	ShinyRarity   string    `json:"shiny_rarity,omitempty"`
	Type1         string    `json:"type_1_name,omitempty"`
	Type2         string    `json:"type_2_name,omitempty"`
	Evolutions    []int     `json:"evolves_to,omitempty"`
	Costumes      []Costume `json:"costumes,omitempty"`
	DateAvailable string    `json:"date_available,omitempty"`
}

// GroupingLists maps a list name to an ordered set of variant ids.
type GroupingLists map[string][]string

// Catalog is the full reference data set served by the remote authority.
type Catalog struct {
	Variants      []Variant     `json:"variants"`
	GroupingLists GroupingLists `json:"groupingLists"`
}

// IsEmpty reports whether the catalog carries no variants.
func (c *Catalog) IsEmpty() bool {
	return c == nil || len(c.Variants) == 0
}

// VariantKeyFromInstanceID returns the variant key encoded in an instance id
// of the form "<variant_id>_<uuid>". Variant ids may themselves contain
// underscores, so only the final segment is stripped.
func VariantKeyFromInstanceID(instanceID string) string {
	idx := strings.LastIndex(instanceID, "_")
	if idx <= 0 {
		return instanceID
	}
	return instanceID[:idx]
}
