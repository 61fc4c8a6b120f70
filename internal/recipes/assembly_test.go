package recipes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleDetailRendersRelations(t *testing.T) {
	author := "user-1"
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	recipe := Recipe{
		ID:            7,
		Name:          "Chili Powder",
		Description:   "spice blend",
		Servings:      1,
		CookTime:      "5 minutes",
		CreatedOn:     created,
		LastUpdatedOn: created,
		AuthorID:      &author,
	}
	links := []IngredientLink{{RecipeID: 7, IngredientID: 3, Amount: decimal.NewFromInt(1), Unit: "tbsp"}}
	steps := []Step{{RecipeID: 7, Order: 1, Instruction: "mix spices"}}

	detail := AssembleDetail(recipe, links, steps, []int64{2})

	assert.Equal(t, created.UTC(), detail.CreatedOn)
	require.Len(t, detail.Ingredients, 1)
	assert.Equal(t, IngredientLinkView{Amount: "1.00", Unit: "tbsp", Specifier: "", IngredientID: 3, RecipeID: 7}, detail.Ingredients[0])
	assert.Equal(t, []StepView{{Order: 1, Instruction: "mix spices"}}, detail.Steps)
	assert.Equal(t, []int64{2}, detail.Tags)

	summary := detail.Summary()
	assert.Equal(t, []string{"mix spices"}, summary.Steps)
	assert.Equal(t, detail.Ingredients, summary.Ingredients)
}

func TestAssembleDetailEncodesEmptyRelationsAsLists(t *testing.T) {
	detail := AssembleDetail(Recipe{ID: 1, Name: "Water"}, nil, nil, nil)

	encoded, err := json.Marshal(detail.Summary())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, []interface{}{}, decoded["ingredients"])
	assert.Equal(t, []interface{}{}, decoded["steps"])
	assert.Equal(t, []interface{}{}, decoded["tags"])
	assert.Nil(t, decoded["author_id"])
}

func TestViewLinkFixesAmountScale(t *testing.T) {
	for raw, expected := range map[string]string{"0.5": "0.50", "12": "12.00", "999.99": "999.99"} {
		view := ViewLink(IngredientLink{Amount: decimal.RequireFromString(raw), Unit: "g"})
		assert.Equal(t, expected, view.Amount)
	}
}
