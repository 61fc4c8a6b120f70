package recipes

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Payload is a decoded JSON object. Numbers should be decoded as json.Number so
// amounts keep their exact precision, though float64 values are accepted.
type Payload map[string]interface{}

const amountScale = 2

var (
	requiredRecipeFields     = []string{"name", "description", "servings", "cook_time"}
	requiredIngredientFields = []string{"amount", "unit", "specifier"}
	// amounts are stored as decimal(5,2)
	maxAmount = decimal.New(1000, 0)
)

// IngredientDraft is a validated ingredient entry. Exactly one of
// IngredientID and Name is set.
type IngredientDraft struct {
	IngredientID int64
	Name         string
	Amount       decimal.Decimal
	Unit         Unit
	Specifier    string
}

// RecipeDraft is a validated recipe creation payload. Steps are in their
// final order.
type RecipeDraft struct {
	Name        string
	Description string
	Servings    int
	CookTime    string
	Ingredients []IngredientDraft
	Steps       []string
	TagIDs      []int64
}

// RecipePatch is a validated partial update. Nil scalars and unset Has flags
// leave the stored value untouched.
type RecipePatch struct {
	Name           *string
	Description    *string
	Servings       *int
	CookTime       *string
	Ingredients    []IngredientDraft
	HasIngredients bool
	Steps          []string
	HasSteps       bool
	TagIDs         []int64
	HasTags        bool
}

// IngredientLinkPatch is a validated partial update of an ingredient link.
type IngredientLinkPatch struct {
	Amount    *decimal.Decimal
	Unit      *Unit
	Specifier *string
}

// ValidateRecipePayload checks a recipe creation payload.
func ValidateRecipePayload(payload Payload) (RecipeDraft, error) {
	verr := &ValidationError{}
	for _, field := range requiredRecipeFields {
		if _, ok := lookup(payload, field); !ok {
			verr.Add(field, requiredFieldMessage(field))
		}
	}

	var draft RecipeDraft
	if value, ok := lookup(payload, "name"); ok {
		draft.Name = parseLabel(verr, "name", value)
	}
	if value, ok := lookup(payload, "description"); ok {
		draft.Description = parseText(verr, "description", value)
	}
	if value, ok := lookup(payload, "servings"); ok {
		draft.Servings = parseServings(verr, value)
	}
	if value, ok := lookup(payload, "cook_time"); ok {
		draft.CookTime = parseLabel(verr, "cook_time", value)
	}
	if value, ok := lookup(payload, "ingredients"); ok {
		draft.Ingredients = parseIngredientList(verr, value)
	}
	if value, ok := lookup(payload, "steps"); ok {
		draft.Steps = parseStepList(verr, value)
	}
	if value, ok := lookup(payload, "tags"); ok {
		draft.TagIDs = parseTagList(verr, value)
	}

	if err := verr.orNil(); err != nil {
		return RecipeDraft{}, err
	}
	return draft, nil
}

// ValidateRecipePatch checks a partial recipe update. Keys with null values
// are treated as absent.
func ValidateRecipePatch(payload Payload) (RecipePatch, error) {
	verr := &ValidationError{}
	var patch RecipePatch

	if value, ok := lookup(payload, "name"); ok {
		name := parseLabel(verr, "name", value)
		patch.Name = &name
	}
	if value, ok := lookup(payload, "description"); ok {
		description := parseText(verr, "description", value)
		patch.Description = &description
	}
	if value, ok := lookup(payload, "servings"); ok {
		servings := parseServings(verr, value)
		patch.Servings = &servings
	}
	if value, ok := lookup(payload, "cook_time"); ok {
		cookTime := parseLabel(verr, "cook_time", value)
		patch.CookTime = &cookTime
	}
	if value, ok := lookup(payload, "ingredients"); ok {
		patch.Ingredients = parseIngredientList(verr, value)
		patch.HasIngredients = true
	}
	if value, ok := lookup(payload, "steps"); ok {
		patch.Steps = parseStepList(verr, value)
		patch.HasSteps = true
	}
	if value, ok := lookup(payload, "tags"); ok {
		patch.TagIDs = parseTagList(verr, value)
		patch.HasTags = true
	}

	if err := verr.orNil(); err != nil {
		return RecipePatch{}, err
	}
	return patch, nil
}

// ValidateIngredientLinkPayload checks the payload used to add one ingredient
// to a recipe.
func ValidateIngredientLinkPayload(payload Payload) (IngredientDraft, error) {
	verr := &ValidationError{}
	draft := parseIngredientEntry(verr, "", map[string]interface{}(payload))
	if err := verr.orNil(); err != nil {
		return IngredientDraft{}, err
	}
	return draft, nil
}

// ValidateIngredientLinkPatch checks a partial update of an ingredient link.
func ValidateIngredientLinkPatch(payload Payload) (IngredientLinkPatch, error) {
	verr := &ValidationError{}
	var patch IngredientLinkPatch
	if value, ok := lookup(payload, "amount"); ok {
		amount := parseAmount(verr, "amount", value)
		patch.Amount = &amount
	}
	if value, ok := lookup(payload, "unit"); ok {
		unit := parseUnit(verr, "unit", value)
		patch.Unit = &unit
	}
	if value, ok := lookup(payload, "specifier"); ok {
		specifier := parseText(verr, "specifier", value)
		patch.Specifier = &specifier
	}
	if err := verr.orNil(); err != nil {
		return IngredientLinkPatch{}, err
	}
	return patch, nil
}

// ValidateStepPayload checks the payload used to append or edit a step and
// returns its instruction.
func ValidateStepPayload(payload Payload) (string, error) {
	verr := &ValidationError{}
	value, ok := lookup(payload, "instruction")
	if !ok {
		return "", NewValidationError("instruction", requiredFieldMessage("instruction"))
	}
	instruction := parseInstruction(verr, "instruction", value)
	if err := verr.orNil(); err != nil {
		return "", err
	}
	return instruction, nil
}

func requiredFieldMessage(field string) string {
	return field + " is a required field"
}

func lookup(object map[string]interface{}, key string) (interface{}, bool) {
	value, ok := object[key]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func fieldPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

func asObject(value interface{}) (map[string]interface{}, bool) {
	switch typed := value.(type) {
	case map[string]interface{}:
		return typed, true
	case Payload:
		return typed, true
	default:
		return nil, false
	}
}

func asInteger(value interface{}) (int64, bool) {
	switch typed := value.(type) {
	case json.Number:
		parsed, err := typed.Int64()
		return parsed, err == nil
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) || typed != math.Trunc(typed) {
			return 0, false
		}
		if typed > math.MaxInt64 || typed < math.MinInt64 {
			return 0, false
		}
		return int64(typed), true
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	default:
		return 0, false
	}
}

// parseID accepts positive integers and their decimal string form.
func parseID(value interface{}) (int64, bool) {
	if text, ok := value.(string); ok {
		parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil || parsed <= 0 {
			return 0, false
		}
		return parsed, true
	}
	parsed, ok := asInteger(value)
	if !ok || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

func asDecimal(value interface{}) (decimal.Decimal, bool) {
	switch typed := value.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(typed.String())
		return parsed, err == nil
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(typed))
		return parsed, err == nil
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(typed), true
	case int:
		return decimal.NewFromInt(int64(typed)), true
	case int64:
		return decimal.NewFromInt(typed), true
	default:
		return decimal.Zero, false
	}
}

func parseText(verr *ValidationError, field string, value interface{}) string {
	text, ok := value.(string)
	if !ok {
		verr.Add(field, field+" must be a string")
		return ""
	}
	return text
}

func parseLabel(verr *ValidationError, field string, value interface{}) string {
	text, ok := value.(string)
	if !ok {
		verr.Add(field, field+" must be a string")
		return ""
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		verr.Add(field, field+" may not be blank")
		return ""
	}
	if len(trimmed) > maxNameLength {
		verr.Add(field, fmt.Sprintf("Ensure %s has no more than %d characters", field, maxNameLength))
		return ""
	}
	return trimmed
}

func parseServings(verr *ValidationError, value interface{}) int {
	servings, ok := asInteger(value)
	if !ok || servings <= 0 || servings > math.MaxInt32 {
		verr.Add("servings", "servings must be a positive integer")
		return 0
	}
	return int(servings)
}

func parseAmount(verr *ValidationError, field string, value interface{}) decimal.Decimal {
	amount, ok := asDecimal(value)
	if !ok {
		verr.Add(field, "amount must be a number")
		return decimal.Zero
	}
	if !amount.IsPositive() {
		verr.Add(field, "amount must be greater than zero")
		return decimal.Zero
	}
	if !amount.Equal(amount.Round(amountScale)) {
		verr.Add(field, "Ensure that there are no more than 2 decimal places.")
		return decimal.Zero
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		verr.Add(field, "Ensure that there are no more than 5 digits in total.")
		return decimal.Zero
	}
	return amount.Round(amountScale)
}

func parseUnit(verr *ValidationError, field string, value interface{}) Unit {
	text, ok := value.(string)
	if !ok {
		verr.Add(field, "Invalid Unit")
		return ""
	}
	unit, ok := ParseUnit(text)
	if !ok {
		verr.Add(field, "Invalid Unit")
		return ""
	}
	return unit
}

func parseInstruction(verr *ValidationError, field string, value interface{}) string {
	text, ok := value.(string)
	if !ok {
		verr.Add(field, "instruction must be a string")
		return ""
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		verr.Add(field, "instruction may not be blank")
		return ""
	}
	return trimmed
}

func parseIngredientEntry(verr *ValidationError, prefix string, entry map[string]interface{}) IngredientDraft {
	for _, field := range requiredIngredientFields {
		if _, ok := lookup(entry, field); !ok {
			verr.Add(fieldPath(prefix, field), requiredFieldMessage(field))
		}
	}

	var draft IngredientDraft
	if value, ok := lookup(entry, "ingredient_id"); ok {
		id, valid := parseID(value)
		if !valid {
			verr.Add(fieldPath(prefix, "ingredient_id"), "ingredient_id must be an integer")
		}
		draft.IngredientID = id
	} else if value, ok := lookup(entry, "name"); ok {
		draft.Name = parseLabel(verr, fieldPath(prefix, "name"), value)
	} else {
		verr.Add(fieldPath(prefix, "ingredient_id"), requiredFieldMessage("ingredient_id"))
	}
	if value, ok := lookup(entry, "amount"); ok {
		draft.Amount = parseAmount(verr, fieldPath(prefix, "amount"), value)
	}
	if value, ok := lookup(entry, "unit"); ok {
		draft.Unit = parseUnit(verr, fieldPath(prefix, "unit"), value)
	}
	if value, ok := lookup(entry, "specifier"); ok {
		draft.Specifier = strings.TrimSpace(parseText(verr, fieldPath(prefix, "specifier"), value))
	}
	return draft
}

func parseIngredientList(verr *ValidationError, value interface{}) []IngredientDraft {
	items, ok := value.([]interface{})
	if !ok {
		verr.Add("ingredients", "ingredients must be a list")
		return nil
	}

	drafts := make([]IngredientDraft, 0, len(items))
	seenIDs := make(map[int64]struct{}, len(items))
	seenNames := make(map[string]struct{}, len(items))
	for index, item := range items {
		prefix := fmt.Sprintf("ingredients[%d]", index)
		entry, ok := asObject(item)
		if !ok {
			verr.Add(prefix, "ingredient must be an object")
			continue
		}
		entryErr := &ValidationError{}
		draft := parseIngredientEntry(entryErr, prefix, entry)
		if !entryErr.Empty() {
			verr.merge(entryErr)
			continue
		}
		if draft.IngredientID != 0 {
			if _, dup := seenIDs[draft.IngredientID]; dup {
				verr.Add("ingredients", fmt.Sprintf("ingredient %d appears more than once", draft.IngredientID))
				continue
			}
			seenIDs[draft.IngredientID] = struct{}{}
		} else {
			if _, dup := seenNames[draft.Name]; dup {
				verr.Add("ingredients", fmt.Sprintf("ingredient %q appears more than once", draft.Name))
				continue
			}
			seenNames[draft.Name] = struct{}{}
		}
		drafts = append(drafts, draft)
	}
	return drafts
}

type stepEntry struct {
	order       int64
	hasOrder    bool
	instruction string
}

func parseStepList(verr *ValidationError, value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		verr.Add("steps", "steps must be a list")
		return nil
	}

	entryErr := &ValidationError{}
	entries := make([]stepEntry, 0, len(items))
	ordered := 0
	for index, item := range items {
		prefix := fmt.Sprintf("steps[%d]", index)
		if text, ok := item.(string); ok {
			entries = append(entries, stepEntry{instruction: parseInstruction(entryErr, prefix, text)})
			continue
		}
		object, ok := asObject(item)
		if !ok {
			entryErr.Add(prefix, "step must be a string or an object")
			continue
		}
		var entry stepEntry
		if raw, ok := lookup(object, "instruction"); ok {
			entry.instruction = parseInstruction(entryErr, fieldPath(prefix, "instruction"), raw)
		} else {
			entryErr.Add(fieldPath(prefix, "instruction"), requiredFieldMessage("instruction"))
		}
		if raw, ok := lookup(object, "order"); ok {
			order, valid := asInteger(raw)
			if !valid || order <= 0 {
				entryErr.Add(fieldPath(prefix, "order"), "order must be a positive integer")
			}
			entry.order = order
			entry.hasOrder = true
			ordered++
		}
		entries = append(entries, entry)
	}
	if !entryErr.Empty() {
		verr.merge(entryErr)
		return nil
	}

	if ordered > 0 {
		if ordered != len(entries) {
			verr.Add("steps", "steps must be sequential")
			return nil
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
		for index, entry := range entries {
			if entry.order != int64(index+1) {
				verr.Add("steps", "steps must be sequential")
				return nil
			}
		}
	}

	instructions := make([]string, len(entries))
	for index, entry := range entries {
		instructions[index] = entry.instruction
	}
	return instructions
}

func parseTagList(verr *ValidationError, value interface{}) []int64 {
	items, ok := value.([]interface{})
	if !ok {
		verr.Add("tags", "tags must be a list")
		return nil
	}

	ids := make([]int64, 0, len(items))
	seen := make(map[int64]struct{}, len(items))
	valid := true
	for _, item := range items {
		id, ok := parseID(item)
		if !ok {
			valid = false
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if !valid {
		verr.Add("tags", "tag ID must be either a string or an integer")
		return nil
	}
	return ids
}

func (e *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		for _, message := range messages {
			e.Add(field, message)
		}
	}
}
