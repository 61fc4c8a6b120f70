package recipes

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListRecipeIngredients returns the ingredient links of a recipe.
func (s *Service) ListRecipeIngredients(ctx context.Context, recipeID int64) ([]IngredientLinkView, error) {
	var views []IngredientLinkView
	err := s.observe(ctx, opListRecipeIngredients, func(ctx context.Context) error {
		db := s.db.WithContext(ctx)
		if err := s.recipeExists(db, opListRecipeIngredients, recipeID); err != nil {
			return err
		}
		var links []IngredientLink
		if err := db.Where("recipe_id = ?", recipeID).Order("ingredient_id").Find(&links).Error; err != nil {
			return s.storeError(opListRecipeIngredients, "links_select_failed", err, conflictIngredientInRecipe,
				zap.Int64("recipe_id", recipeID))
		}
		views = viewLinks(links)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// AddRecipeIngredient links an ingredient to a recipe. An unknown ingredient
// id is a validation error.
func (s *Service) AddRecipeIngredient(ctx context.Context, recipeID int64, draft IngredientDraft, actor Actor) (IngredientLinkView, error) {
	var view IngredientLinkView
	err := s.observe(ctx, opAddRecipeIngredient, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opAddRecipeIngredient, recipeID, actor); err != nil {
				return err
			}
			ingredient, err := s.resolveIngredient(tx, opAddRecipeIngredient, "ingredient_id", draft)
			if err != nil {
				return err
			}
			if err := s.insertLink(tx, opAddRecipeIngredient, recipeID, ingredient.ID, draft); err != nil {
				return err
			}
			link, err := s.findLink(tx, opAddRecipeIngredient, recipeID, ingredient.ID)
			if err != nil {
				return err
			}
			view = ViewLink(link)
			return s.touch(tx, opAddRecipeIngredient, recipeID)
		})
	})
	if err != nil {
		return IngredientLinkView{}, err
	}
	return view, nil
}

// GetRecipeIngredient returns one ingredient link.
func (s *Service) GetRecipeIngredient(ctx context.Context, recipeID, ingredientID int64) (IngredientLinkView, error) {
	var view IngredientLinkView
	err := s.observe(ctx, opGetRecipeIngredient, func(ctx context.Context) error {
		link, err := s.findLink(s.db.WithContext(ctx), opGetRecipeIngredient, recipeID, ingredientID)
		if err != nil {
			return err
		}
		view = ViewLink(link)
		return nil
	})
	if err != nil {
		return IngredientLinkView{}, err
	}
	return view, nil
}

// UpdateRecipeIngredient applies a partial update to an ingredient link.
func (s *Service) UpdateRecipeIngredient(ctx context.Context, recipeID, ingredientID int64, patch IngredientLinkPatch, actor Actor) (IngredientLinkView, error) {
	var view IngredientLinkView
	err := s.observe(ctx, opUpdateRecipeIngredient, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opUpdateRecipeIngredient, recipeID, actor); err != nil {
				return err
			}
			link, err := s.findLink(tx, opUpdateRecipeIngredient, recipeID, ingredientID)
			if err != nil {
				return err
			}

			updates := make(map[string]interface{})
			if patch.Amount != nil && !patch.Amount.Equal(link.Amount) {
				updates["amount"] = *patch.Amount
				link.Amount = *patch.Amount
			}
			if patch.Unit != nil && string(*patch.Unit) != link.Unit {
				updates["unit"] = string(*patch.Unit)
				link.Unit = string(*patch.Unit)
			}
			if patch.Specifier != nil && *patch.Specifier != link.Specifier {
				updates["specifier"] = *patch.Specifier
				link.Specifier = *patch.Specifier
			}
			view = ViewLink(link)
			if len(updates) == 0 {
				return nil
			}

			err = tx.Model(&IngredientLink{}).
				Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).
				Updates(updates).Error
			if err != nil {
				return s.storeError(opUpdateRecipeIngredient, "link_update_failed", err, conflictIngredientInRecipe,
					zap.Int64("recipe_id", recipeID),
					zap.Int64("ingredient_id", ingredientID))
			}
			return s.touch(tx, opUpdateRecipeIngredient, recipeID)
		})
	})
	if err != nil {
		return IngredientLinkView{}, err
	}
	return view, nil
}

// RemoveRecipeIngredient deletes an ingredient link. Links to ingredients
// produced by a recipe cannot be removed.
func (s *Service) RemoveRecipeIngredient(ctx context.Context, recipeID, ingredientID int64, actor Actor) error {
	return s.observe(ctx, opRemoveRecipeIngredient, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opRemoveRecipeIngredient, recipeID, actor); err != nil {
				return err
			}
			link, err := s.findLink(tx, opRemoveRecipeIngredient, recipeID, ingredientID)
			if err != nil {
				return err
			}
			if err := s.removeLink(tx, opRemoveRecipeIngredient, link); err != nil {
				return err
			}
			return s.touch(tx, opRemoveRecipeIngredient, recipeID)
		})
	})
}

func (s *Service) findLink(db *gorm.DB, operation string, recipeID, ingredientID int64) (IngredientLink, error) {
	var link IngredientLink
	err := db.Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredientID).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return IngredientLink{}, &NotFoundError{Resource: ResourceRecipeIngredient}
	}
	if err != nil {
		return IngredientLink{}, s.storeError(operation, "link_select_failed", err, conflictIngredientInRecipe,
			zap.Int64("recipe_id", recipeID),
			zap.Int64("ingredient_id", ingredientID))
	}
	return link, nil
}

// ListRecipeTags returns the tags attached to a recipe.
func (s *Service) ListRecipeTags(ctx context.Context, recipeID int64) ([]TagView, error) {
	var views []TagView
	err := s.observe(ctx, opListRecipeTags, func(ctx context.Context) error {
		db := s.db.WithContext(ctx)
		if err := s.recipeExists(db, opListRecipeTags, recipeID); err != nil {
			return err
		}
		var tags []Tag
		err := db.Where("id IN (?)", db.Model(&RecipeTag{}).Select("tag_id").Where("recipe_id = ?", recipeID)).
			Order("id").
			Find(&tags).Error
		if err != nil {
			return s.storeError(opListRecipeTags, "tags_select_failed", err, conflictTagValue,
				zap.Int64("recipe_id", recipeID))
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

// AddRecipeTag attaches an existing tag to a recipe. Attaching a tag twice is
// a no-op.
func (s *Service) AddRecipeTag(ctx context.Context, recipeID, tagID int64, actor Actor) (TagView, error) {
	var view TagView
	err := s.observe(ctx, opAddRecipeTag, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opAddRecipeTag, recipeID, actor); err != nil {
				return err
			}
			var tag Tag
			err := tx.Where("id = ?", tagID).Take(&tag).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NewValidationError("tag_id", "Invalid tag ID")
			}
			if err != nil {
				return s.storeError(opAddRecipeTag, "tag_select_failed", err, conflictTagValue,
					zap.Int64("tag_id", tagID))
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&RecipeTag{RecipeID: recipeID, TagID: tagID})
			if result.Error != nil {
				return s.storeError(opAddRecipeTag, "tag_link_insert_failed", result.Error, "That tag is already on the recipe",
					zap.Int64("recipe_id", recipeID),
					zap.Int64("tag_id", tagID))
			}
			view = ViewTag(tag)
			if result.RowsAffected == 0 {
				return nil
			}
			return s.touch(tx, opAddRecipeTag, recipeID)
		})
	})
	if err != nil {
		return TagView{}, err
	}
	return view, nil
}

// RemoveRecipeTag detaches a tag from a recipe. The tag itself is kept.
func (s *Service) RemoveRecipeTag(ctx context.Context, recipeID, tagID int64, actor Actor) error {
	return s.observe(ctx, opRemoveRecipeTag, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opRemoveRecipeTag, recipeID, actor); err != nil {
				return err
			}
			result := tx.Where("recipe_id = ? AND tag_id = ?", recipeID, tagID).Delete(&RecipeTag{})
			if result.Error != nil {
				return s.storeError(opRemoveRecipeTag, "tag_link_delete_failed", result.Error, conflictTagValue,
					zap.Int64("recipe_id", recipeID),
					zap.Int64("tag_id", tagID))
			}
			if result.RowsAffected == 0 {
				return &NotFoundError{Resource: ResourceRecipeTag}
			}
			return s.touch(tx, opRemoveRecipeTag, recipeID)
		})
	})
}
