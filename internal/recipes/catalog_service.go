package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IngredientInput describes an ingredient to create. RecipeID marks the
// ingredient as the output of that recipe.
type IngredientInput struct {
	Name     string
	RecipeID *int64
}

// TagInput describes a tag to create.
type TagInput struct {
	Value string
	Kind  *TagKind
}

// ListIngredients returns all ingredients ordered by name.
func (s *Service) ListIngredients(ctx context.Context) ([]IngredientView, error) {
	var views []IngredientView
	err := s.observe(ctx, opListIngredients, func(ctx context.Context) error {
		var ingredients []Ingredient
		if err := s.db.WithContext(ctx).Order("name").Find(&ingredients).Error; err != nil {
			return s.storeError(opListIngredients, "ingredients_select_failed", err, conflictIngredientName)
		}
		views = make([]IngredientView, len(ingredients))
		for i, ingredient := range ingredients {
			views[i] = ViewIngredient(ingredient)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetIngredient returns one ingredient.
func (s *Service) GetIngredient(ctx context.Context, ingredientID int64) (IngredientView, error) {
	var view IngredientView
	err := s.observe(ctx, opGetIngredient, func(ctx context.Context) error {
		var ingredient Ingredient
		err := s.db.WithContext(ctx).Where("id = ?", ingredientID).Take(&ingredient).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: ResourceIngredient}
		}
		if err != nil {
			return s.storeError(opGetIngredient, "ingredient_select_failed", err, conflictIngredientName,
				zap.Int64("ingredient_id", ingredientID))
		}
		view = ViewIngredient(ingredient)
		return nil
	})
	if err != nil {
		return IngredientView{}, err
	}
	return view, nil
}

// CreateIngredient returns the ingredient with the given name, creating it
// when it does not exist yet. created reports whether a row was inserted.
func (s *Service) CreateIngredient(ctx context.Context, input IngredientInput) (IngredientView, bool, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return IngredientView{}, false, NewValidationError("name", requiredFieldMessage("name"))
	}
	if len(name) > maxNameLength {
		return IngredientView{}, false, NewValidationError("name", fmt.Sprintf("Ensure name has no more than %d characters", maxNameLength))
	}

	var (
		view    IngredientView
		created bool
	)
	err := s.observe(ctx, opCreateIngredient, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if input.RecipeID != nil {
				if err := s.recipeExists(tx, opCreateIngredient, *input.RecipeID); err != nil {
					var notFound *NotFoundError
					if errors.As(err, &notFound) {
						return NewValidationError("recipe_id", "Invalid recipe_id")
					}
					return err
				}
			}
			ingredient, inserted, err := getOrCreate(tx, "name", name, func() Ingredient {
				return Ingredient{Name: name, RecipeID: input.RecipeID}
			})
			if err != nil {
				return s.storeError(opCreateIngredient, "ingredient_upsert_failed", err, "That recipe already produces an ingredient",
					zap.String("ingredient_name", name))
			}
			view = ViewIngredient(ingredient)
			created = inserted
			return nil
		})
	})
	if err != nil {
		return IngredientView{}, false, err
	}
	return view, created, nil
}

// DeleteIngredient removes an ingredient. Only privileged users may delete
// shared ingredients, and ingredients still used by a recipe are kept.
func (s *Service) DeleteIngredient(ctx context.Context, ingredientID int64, actor Actor) error {
	return s.observe(ctx, opDeleteIngredient, func(ctx context.Context) error {
		if !actor.Privileged {
			return &ForbiddenError{}
		}
		return s.inTx(ctx, func(tx *gorm.DB) error {
			var ingredient Ingredient
			err := tx.Where("id = ?", ingredientID).Take(&ingredient).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: ResourceIngredient}
			}
			if err != nil {
				return s.storeError(opDeleteIngredient, "ingredient_select_failed", err, conflictIngredientName,
					zap.Int64("ingredient_id", ingredientID))
			}

			var uses int64
			if err := tx.Model(&IngredientLink{}).Where("ingredient_id = ?", ingredientID).Count(&uses).Error; err != nil {
				return s.storeError(opDeleteIngredient, "links_count_failed", err, conflictIngredientInRecipe,
					zap.Int64("ingredient_id", ingredientID))
			}
			if uses > 0 {
				return &ConflictError{Message: fmt.Sprintf("%s is used by %d recipe(s) and cannot be deleted", ingredient.Name, uses)}
			}

			if err := tx.Where("id = ?", ingredientID).Delete(&Ingredient{}).Error; err != nil {
				return s.storeError(opDeleteIngredient, "ingredient_delete_failed", err, conflictIngredientName,
					zap.Int64("ingredient_id", ingredientID))
			}
			return nil
		})
	})
}

// ListTags returns tags ordered by value, optionally limited to one kind.
func (s *Service) ListTags(ctx context.Context, kind *TagKind) ([]TagView, error) {
	var views []TagView
	err := s.observe(ctx, opListTags, func(ctx context.Context) error {
		query := s.db.WithContext(ctx).Order("value")
		if kind != nil {
			query = query.Where("kind = ?", string(*kind))
		}
		var tags []Tag
		if err := query.Find(&tags).Error; err != nil {
			return s.storeError(opListTags, "tags_select_failed", err, conflictTagValue)
		}
		views = make([]TagView, len(tags))
		for i, tag := range tags {
			views[i] = ViewTag(tag)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetTag returns one tag.
func (s *Service) GetTag(ctx context.Context, tagID int64) (TagView, error) {
	var view TagView
	err := s.observe(ctx, opGetTag, func(ctx context.Context) error {
		var tag Tag
		err := s.db.WithContext(ctx).Where("id = ?", tagID).Take(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: ResourceTag}
		}
		if err != nil {
			return s.storeError(opGetTag, "tag_select_failed", err, conflictTagValue,
				zap.Int64("tag_id", tagID))
		}
		view = ViewTag(tag)
		return nil
	})
	if err != nil {
		return TagView{}, err
	}
	return view, nil
}

// CreateTag returns the tag with the given value, creating it when it does
// not exist yet. created reports whether a row was inserted.
func (s *Service) CreateTag(ctx context.Context, input TagInput) (TagView, bool, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return TagView{}, false, NewValidationError("value", requiredFieldMessage("value"))
	}
	if len(value) > maxNameLength {
		return TagView{}, false, NewValidationError("value", fmt.Sprintf("Ensure value has no more than %d characters", maxNameLength))
	}
	var kind *string
	if input.Kind != nil {
		parsed, ok := ParseTagKind(string(*input.Kind))
		if !ok {
			return TagView{}, false, NewValidationError("kind", "Invalid Tag Kind")
		}
		code := string(parsed)
		kind = &code
	}

	var (
		view    TagView
		created bool
	)
	err := s.observe(ctx, opCreateTag, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			tag, inserted, err := getOrCreate(tx, "value", value, func() Tag {
				return Tag{Value: value, Kind: kind}
			})
			if err != nil {
				return s.storeError(opCreateTag, "tag_upsert_failed", err, conflictTagValue,
					zap.String("tag_value", value))
			}
			view = ViewTag(tag)
			created = inserted
			return nil
		})
	})
	if err != nil {
		return TagView{}, false, err
	}
	return view, created, nil
}
