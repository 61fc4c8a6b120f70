package recipes

import "time"

// IngredientLinkView is the single representation of an ingredient link used
// by every endpoint.
type IngredientLinkView struct {
	Amount       string `json:"amount"`
	Unit         string `json:"unit"`
	Specifier    string `json:"specifier"`
	IngredientID int64  `json:"ingredient_id"`
	RecipeID     int64  `json:"recipe_id"`
}

// StepView is the detailed representation of a step.
type StepView struct {
	Order       int    `json:"order"`
	Instruction string `json:"instruction"`
}

// RecipeDetail is the single recipe representation. Steps carry their order.
type RecipeDetail struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	Servings      int                  `json:"servings"`
	CookTime      string               `json:"cook_time"`
	CreatedOn     time.Time            `json:"created_on"`
	LastUpdatedOn time.Time            `json:"last_updated_on"`
	AuthorID      *string              `json:"author_id"`
	Ingredients   []IngredientLinkView `json:"ingredients"`
	Steps         []StepView           `json:"steps"`
	Tags          []int64              `json:"tags"`
}

// RecipeSummary is the list representation. Steps are instruction strings.
type RecipeSummary struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	Servings      int                  `json:"servings"`
	CookTime      string               `json:"cook_time"`
	CreatedOn     time.Time            `json:"created_on"`
	LastUpdatedOn time.Time            `json:"last_updated_on"`
	AuthorID      *string              `json:"author_id"`
	Ingredients   []IngredientLinkView `json:"ingredients"`
	Steps         []string             `json:"steps"`
	Tags          []int64              `json:"tags"`
}

// IngredientView is the representation of an ingredient.
type IngredientView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	RecipeID *int64 `json:"recipe_id"`
}

// TagView is the representation of a tag.
type TagView struct {
	ID    int64   `json:"id"`
	Value string  `json:"value"`
	Kind  *string `json:"kind"`
}

// AssembleDetail combines a recipe and its relations. Relations are expected
// to belong to the recipe; steps must already be ordered.
func AssembleDetail(recipe Recipe, links []IngredientLink, steps []Step, tagIDs []int64) RecipeDetail {
	stepViews := make([]StepView, len(steps))
	for i, step := range steps {
		stepViews[i] = StepView{Order: step.Order, Instruction: step.Instruction}
	}
	tags := append(make([]int64, 0, len(tagIDs)), tagIDs...)
	return RecipeDetail{
		ID:            recipe.ID,
		Name:          recipe.Name,
		Description:   recipe.Description,
		Servings:      recipe.Servings,
		CookTime:      recipe.CookTime,
		CreatedOn:     recipe.CreatedOn.UTC(),
		LastUpdatedOn: recipe.LastUpdatedOn.UTC(),
		AuthorID:      recipe.AuthorID,
		Ingredients:   viewLinks(links),
		Steps:         stepViews,
		Tags:          tags,
	}
}

// Summary converts a detail into the list representation.
func (d RecipeDetail) Summary() RecipeSummary {
	steps := make([]string, len(d.Steps))
	for i, step := range d.Steps {
		steps[i] = step.Instruction
	}
	return RecipeSummary{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		Servings:      d.Servings,
		CookTime:      d.CookTime,
		CreatedOn:     d.CreatedOn,
		LastUpdatedOn: d.LastUpdatedOn,
		AuthorID:      d.AuthorID,
		Ingredients:   d.Ingredients,
		Steps:         steps,
		Tags:          d.Tags,
	}
}

// ViewLink renders an ingredient link.
func ViewLink(link IngredientLink) IngredientLinkView {
	return IngredientLinkView{
		Amount:       link.Amount.StringFixed(amountScale),
		Unit:         link.Unit,
		Specifier:    link.Specifier,
		IngredientID: link.IngredientID,
		RecipeID:     link.RecipeID,
	}
}

func viewLinks(links []IngredientLink) []IngredientLinkView {
	views := make([]IngredientLinkView, len(links))
	for i, link := range links {
		views[i] = ViewLink(link)
	}
	return views
}

// ViewIngredient renders an ingredient.
func ViewIngredient(ingredient Ingredient) IngredientView {
	return IngredientView{ID: ingredient.ID, Name: ingredient.Name, RecipeID: ingredient.RecipeID}
}

// ViewTag renders a tag.
func ViewTag(tag Tag) TagView {
	return TagView{ID: tag.ID, Value: tag.Value, Kind: tag.Kind}
}
