package recipes

import "strings"

// UnitCategory groups measurement units.
type UnitCategory string

const (
	UnitCategoryVolume UnitCategory = "Volume"
	UnitCategoryMass   UnitCategory = "Mass"
	UnitCategoryLength UnitCategory = "Length"
	UnitCategoryOther  UnitCategory = "Other"
)

// Unit is a measurement unit code stored on ingredient links.
type Unit string

// UnitOption describes one selectable unit.
type UnitOption struct {
	Code  Unit   `json:"code"`
	Label string `json:"label"`
}

// UnitGroup is a category and the units that belong to it.
type UnitGroup struct {
	Category UnitCategory `json:"category"`
	Units    []UnitOption `json:"units"`
}

var unitCatalog = []UnitGroup{
	{
		Category: UnitCategoryVolume,
		Units: []UnitOption{
			{Code: "tsp", Label: "teaspoon"},
			{Code: "tbsp", Label: "tablespoon"},
			{Code: "fl oz", Label: "fluid ounce"},
			{Code: "c", Label: "cup"},
			{Code: "pt", Label: "pint"},
			{Code: "qt", Label: "quart"},
			{Code: "gal", Label: "gallon"},
			{Code: "ml", Label: "milliliter"},
			{Code: "l", Label: "liter"},
		},
	},
	{
		Category: UnitCategoryMass,
		Units: []UnitOption{
			{Code: "lb", Label: "pound"},
			{Code: "oz", Label: "ounce"},
			{Code: "g", Label: "gram"},
		},
	},
	{
		Category: UnitCategoryLength,
		Units: []UnitOption{
			{Code: "in", Label: "inch"},
			{Code: "mm", Label: "millimeter"},
			{Code: "cm", Label: "centimeter"},
		},
	},
	{
		Category: UnitCategoryOther,
		Units: []UnitOption{
			{Code: "pieces", Label: "pieces"},
			{Code: "n/a", Label: "n/a"},
		},
	},
}

var unitIndex = buildUnitIndex()

func buildUnitIndex() map[Unit]UnitCategory {
	index := make(map[Unit]UnitCategory)
	for _, group := range unitCatalog {
		for _, option := range group.Units {
			index[option.Code] = group.Category
		}
	}
	return index
}

// ParseUnit returns the unit for a code, ignoring surrounding whitespace.
func ParseUnit(raw string) (Unit, bool) {
	unit := Unit(strings.TrimSpace(raw))
	_, ok := unitIndex[unit]
	return unit, ok
}

// Category reports the category the unit belongs to.
func (u Unit) Category() (UnitCategory, bool) {
	category, ok := unitIndex[u]
	return category, ok
}

// Units returns the unit catalog grouped by category.
func Units() []UnitGroup {
	groups := make([]UnitGroup, len(unitCatalog))
	for i, group := range unitCatalog {
		groups[i] = UnitGroup{
			Category: group.Category,
			Units:    append([]UnitOption(nil), group.Units...),
		}
	}
	return groups
}

// TagKind is the optional classification of a tag.
type TagKind string

const (
	TagKindCuisine    TagKind = "C"
	TagKindMeal       TagKind = "M"
	TagKindPrepMethod TagKind = "P"
)

// TagKindOption describes one selectable tag kind.
type TagKindOption struct {
	Code  TagKind `json:"code"`
	Label string  `json:"label"`
}

var tagKinds = []TagKindOption{
	{Code: TagKindCuisine, Label: "Cuisine"},
	{Code: TagKindMeal, Label: "Meal"},
	{Code: TagKindPrepMethod, Label: "Prep Method"},
}

// ParseTagKind accepts either the code or the label of a tag kind.
func ParseTagKind(raw string) (TagKind, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, option := range tagKinds {
		if trimmed == string(option.Code) || strings.EqualFold(trimmed, option.Label) {
			return option.Code, true
		}
	}
	return "", false
}

// TagKinds returns the supported tag kinds.
func TagKinds() []TagKindOption {
	return append([]TagKindOption(nil), tagKinds...)
}
