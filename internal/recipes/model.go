package recipes

import (
	"time"

	"github.com/shopspring/decimal"
)

const maxNameLength = 255

// Recipe is the root of the recipe aggregate.
type Recipe struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name          string    `gorm:"column:name;size:255;not null;uniqueIndex"`
	Description   string    `gorm:"column:description;type:text;not null"`
	Servings      int       `gorm:"column:servings;not null"`
	CookTime      string    `gorm:"column:cook_time;size:255;not null"`
	CreatedOn     time.Time `gorm:"column:created_on;not null"`
	LastUpdatedOn time.Time `gorm:"column:last_updated_on;not null"`
	AuthorID      *string   `gorm:"column:author_id;size:190;index"`
}

// TableName exposes the table backing recipes.
func (Recipe) TableName() string {
	return "recipes"
}

// Ingredient is shared across recipes. RecipeID is set when the ingredient is
// the output of another recipe.
type Ingredient struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name     string `gorm:"column:name;size:255;not null;uniqueIndex"`
	RecipeID *int64 `gorm:"column:recipe_id;uniqueIndex"`
}

// TableName exposes the table backing ingredients.
func (Ingredient) TableName() string {
	return "ingredients"
}

// Tag labels recipes. Kind holds a TagKind code when set.
type Tag struct {
	ID    int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Value string  `gorm:"column:value;size:255;not null;uniqueIndex"`
	Kind  *string `gorm:"column:kind;size:1"`
}

// TableName exposes the table backing tags.
func (Tag) TableName() string {
	return "tags"
}

// IngredientLink records how much of an ingredient a recipe uses.
type IngredientLink struct {
	RecipeID     int64           `gorm:"column:recipe_id;primaryKey;autoIncrement:false"`
	IngredientID int64           `gorm:"column:ingredient_id;primaryKey;autoIncrement:false;index"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(5,2);not null"`
	Unit         string          `gorm:"column:unit;size:10;not null"`
	Specifier    string          `gorm:"column:specifier;size:255;not null;default:''"`
}

// TableName exposes the table backing ingredient links.
func (IngredientLink) TableName() string {
	return "ingredients_in_recipe"
}

// Step is one instruction of a recipe. Orders for a recipe are always 1..N.
type Step struct {
	RecipeID    int64  `gorm:"column:recipe_id;primaryKey;autoIncrement:false"`
	Order       int    `gorm:"column:step_order;primaryKey;autoIncrement:false"`
	Instruction string `gorm:"column:instruction;type:text;not null"`
}

// TableName exposes the table backing recipe steps.
func (Step) TableName() string {
	return "steps"
}

// RecipeTag associates an existing tag with a recipe.
type RecipeTag struct {
	RecipeID int64 `gorm:"column:recipe_id;primaryKey;autoIncrement:false"`
	TagID    int64 `gorm:"column:tag_id;primaryKey;autoIncrement:false;index"`
}

// TableName exposes the table backing recipe tag links.
func (RecipeTag) TableName() string {
	return "recipe_tags"
}

// Favorite marks a recipe as favorited by a user.
type Favorite struct {
	RecipeID int64  `gorm:"column:recipe_id;primaryKey;autoIncrement:false"`
	UserID   string `gorm:"column:user_id;primaryKey;size:190;index"`
}

// TableName exposes the table backing recipe favorites.
func (Favorite) TableName() string {
	return "recipe_favorites"
}

// Models lists every table owned by the recipes package, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Recipe{},
		&Ingredient{},
		&Tag{},
		&IngredientLink{},
		&Step{},
		&RecipeTag{},
		&Favorite{},
	}
}

// Actor identifies the principal performing an operation.
type Actor struct {
	UserID     string
	Privileged bool
}
