package recipes

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListFilter narrows ListRecipes. Zero values do not filter.
type ListFilter struct {
	TagID       int64
	AuthorID    string
	FavoritedBy string
}

// CreateRecipe stores a recipe together with its ingredient links, steps and
// tags in one transaction. The actor becomes the author.
func (s *Service) CreateRecipe(ctx context.Context, draft RecipeDraft, actor Actor) (RecipeDetail, error) {
	if err := requireActor(opCreateRecipe, actor); err != nil {
		return RecipeDetail{}, err
	}

	var detail RecipeDetail
	err := s.observe(ctx, opCreateRecipe, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			now := s.now()
			author := actor.UserID
			recipe := Recipe{
				Name:          draft.Name,
				Description:   draft.Description,
				Servings:      draft.Servings,
				CookTime:      draft.CookTime,
				CreatedOn:     now,
				LastUpdatedOn: now,
				AuthorID:      &author,
			}
			if err := tx.Create(&recipe).Error; err != nil {
				return s.storeError(opCreateRecipe, "recipe_insert_failed", err, conflictRecipeName,
					zap.String("name", draft.Name))
			}

			for _, ingredientDraft := range draft.Ingredients {
				ingredient, err := s.resolveIngredient(tx, opCreateRecipe, "ingredients", ingredientDraft)
				if err != nil {
					return err
				}
				if err := s.insertLink(tx, opCreateRecipe, recipe.ID, ingredient.ID, ingredientDraft); err != nil {
					return err
				}
			}

			steps := make([]StepChange, len(draft.Steps))
			for i, instruction := range draft.Steps {
				steps[i] = StepChange{Order: i + 1, Instruction: instruction}
			}
			if err := s.insertSteps(tx, opCreateRecipe, recipe.ID, steps); err != nil {
				return err
			}

			if err := s.requireTags(tx, opCreateRecipe, draft.TagIDs); err != nil {
				return err
			}
			if err := s.insertTagLinks(tx, opCreateRecipe, recipe.ID, draft.TagIDs); err != nil {
				return err
			}

			loaded, err := s.loadDetail(tx, opCreateRecipe, recipe.ID)
			if err != nil {
				return err
			}
			detail = loaded
			return nil
		})
	})
	if err != nil {
		return RecipeDetail{}, err
	}
	return detail, nil
}

// UpdateRecipe applies a partial update. Scalars are only written when they
// differ, steps are reconciled by position, and ingredient links and tags are
// replaced by the requested sets when present.
func (s *Service) UpdateRecipe(ctx context.Context, recipeID int64, patch RecipePatch, actor Actor) (RecipeDetail, error) {
	var detail RecipeDetail
	err := s.observe(ctx, opUpdateRecipe, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			recipe, err := s.lockOwnedRecipe(tx, opUpdateRecipe, recipeID, actor)
			if err != nil {
				return err
			}

			updates := scalarUpdates(recipe, patch)
			mutations := len(updates)

			if patch.HasSteps {
				count, err := s.reconcileSteps(tx, opUpdateRecipe, recipeID, patch.Steps)
				if err != nil {
					return err
				}
				mutations += count
			}
			if patch.HasIngredients {
				count, err := s.reconcileLinks(tx, opUpdateRecipe, recipeID, patch.Ingredients)
				if err != nil {
					return err
				}
				mutations += count
			}
			if patch.HasTags {
				count, err := s.replaceTags(tx, opUpdateRecipe, recipeID, patch.TagIDs)
				if err != nil {
					return err
				}
				mutations += count
			}

			if mutations > 0 {
				updates["last_updated_on"] = s.now()
				if err := tx.Model(&Recipe{}).Where("id = ?", recipeID).Updates(updates).Error; err != nil {
					return s.storeError(opUpdateRecipe, "recipe_update_failed", err, conflictRecipeName,
						zap.Int64("recipe_id", recipeID))
				}
			}

			loaded, err := s.loadDetail(tx, opUpdateRecipe, recipeID)
			if err != nil {
				return err
			}
			detail = loaded
			return nil
		})
	})
	if err != nil {
		return RecipeDetail{}, err
	}
	return detail, nil
}

func scalarUpdates(recipe Recipe, patch RecipePatch) map[string]interface{} {
	updates := make(map[string]interface{})
	if patch.Name != nil && *patch.Name != recipe.Name {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil && *patch.Description != recipe.Description {
		updates["description"] = *patch.Description
	}
	if patch.Servings != nil && *patch.Servings != recipe.Servings {
		updates["servings"] = *patch.Servings
	}
	if patch.CookTime != nil && *patch.CookTime != recipe.CookTime {
		updates["cook_time"] = *patch.CookTime
	}
	return updates
}

// GetRecipe returns the detail representation of a recipe.
func (s *Service) GetRecipe(ctx context.Context, recipeID int64) (RecipeDetail, error) {
	var detail RecipeDetail
	err := s.observe(ctx, opGetRecipe, func(ctx context.Context) error {
		loaded, err := s.loadDetail(s.db.WithContext(ctx), opGetRecipe, recipeID)
		detail = loaded
		return err
	})
	if err != nil {
		return RecipeDetail{}, err
	}
	return detail, nil
}

// ListRecipes returns recipes ordered by name in the list representation.
func (s *Service) ListRecipes(ctx context.Context, filter ListFilter) ([]RecipeSummary, error) {
	var summaries []RecipeSummary
	err := s.observe(ctx, opListRecipes, func(ctx context.Context) error {
		db := s.db.WithContext(ctx)
		query := db.Model(&Recipe{})
		if filter.TagID != 0 {
			query = query.Where("id IN (?)", db.Model(&RecipeTag{}).Select("recipe_id").Where("tag_id = ?", filter.TagID))
		}
		if filter.FavoritedBy != "" {
			query = query.Where("id IN (?)", db.Model(&Favorite{}).Select("recipe_id").Where("user_id = ?", filter.FavoritedBy))
		}
		if filter.AuthorID != "" {
			query = query.Where("author_id = ?", filter.AuthorID)
		}

		var recipes []Recipe
		if err := query.Order("name").Find(&recipes).Error; err != nil {
			return s.storeError(opListRecipes, "recipes_select_failed", err, conflictRecipeName)
		}
		details, err := s.assembleRecipes(db, opListRecipes, recipes)
		if err != nil {
			return err
		}
		summaries = make([]RecipeSummary, len(details))
		for i, detail := range details {
			summaries[i] = detail.Summary()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// DeleteRecipe removes a recipe and everything it owns. Ingredients produced
// by the recipe are kept and detached.
func (s *Service) DeleteRecipe(ctx context.Context, recipeID int64, actor Actor) error {
	return s.observe(ctx, opDeleteRecipe, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opDeleteRecipe, recipeID, actor); err != nil {
				return err
			}
			for _, guard := range s.guards {
				referenced, err := guard.RecipeReferenced(tx, recipeID)
				if err != nil {
					return s.storeError(opDeleteRecipe, "guard_failed", err, conflictRecipeName,
						zap.Int64("recipe_id", recipeID))
				}
				if referenced {
					return &ConflictError{Message: "The recipe is still referenced by a meal plan and cannot be deleted"}
				}
			}

			owned := []interface{}{&IngredientLink{}, &Step{}, &RecipeTag{}, &Favorite{}}
			for _, model := range owned {
				if err := tx.Where("recipe_id = ?", recipeID).Delete(model).Error; err != nil {
					return s.storeError(opDeleteRecipe, "owned_delete_failed", err, conflictRecipeName,
						zap.Int64("recipe_id", recipeID))
				}
			}
			if err := tx.Model(&Ingredient{}).Where("recipe_id = ?", recipeID).Update("recipe_id", nil).Error; err != nil {
				return s.storeError(opDeleteRecipe, "ingredient_detach_failed", err, conflictIngredientName,
					zap.Int64("recipe_id", recipeID))
			}
			if err := tx.Where("id = ?", recipeID).Delete(&Recipe{}).Error; err != nil {
				return s.storeError(opDeleteRecipe, "recipe_delete_failed", err, conflictRecipeName,
					zap.Int64("recipe_id", recipeID))
			}
			return nil
		})
	})
}

// FavoriteRecipe marks the recipe as a favorite of the actor. Repeating the
// call is a no-op.
func (s *Service) FavoriteRecipe(ctx context.Context, recipeID int64, actor Actor) error {
	if err := requireActor(opFavoriteRecipe, actor); err != nil {
		return err
	}
	return s.observe(ctx, opFavoriteRecipe, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if err := s.recipeExists(tx, opFavoriteRecipe, recipeID); err != nil {
				return err
			}
			favorite := Favorite{RecipeID: recipeID, UserID: actor.UserID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&favorite).Error; err != nil {
				return s.storeError(opFavoriteRecipe, "favorite_insert_failed", err, "The recipe is already a favorite")
			}
			return nil
		})
	})
}

// UnfavoriteRecipe removes the recipe from the actor's favorites.
func (s *Service) UnfavoriteRecipe(ctx context.Context, recipeID int64, actor Actor) error {
	if err := requireActor(opUnfavoriteRecipe, actor); err != nil {
		return err
	}
	return s.observe(ctx, opUnfavoriteRecipe, func(ctx context.Context) error {
		db := s.db.WithContext(ctx)
		if err := s.recipeExists(db, opUnfavoriteRecipe, recipeID); err != nil {
			return err
		}
		err := db.Where("recipe_id = ? AND user_id = ?", recipeID, actor.UserID).Delete(&Favorite{}).Error
		if err != nil {
			return s.storeError(opUnfavoriteRecipe, "favorite_delete_failed", err, conflictRecipeName)
		}
		return nil
	})
}

// RemoveUser detaches a removed user from their recipes and drops their
// favorites. It runs inside the caller's transaction.
func (s *Service) RemoveUser(tx *gorm.DB, userID string) error {
	if err := tx.Model(&Recipe{}).Where("author_id = ?", userID).Update("author_id", nil).Error; err != nil {
		return s.storeError(opRemoveAuthor, "author_detach_failed", err, conflictRecipeName,
			zap.String("user_id", userID))
	}
	if err := tx.Where("user_id = ?", userID).Delete(&Favorite{}).Error; err != nil {
		return s.storeError(opRemoveAuthor, "favorites_delete_failed", err, conflictRecipeName,
			zap.String("user_id", userID))
	}
	return nil
}

func (s *Service) resolveIngredient(tx *gorm.DB, operation, field string, draft IngredientDraft) (Ingredient, error) {
	if draft.IngredientID == 0 {
		ingredient, _, err := getOrCreate(tx, "name", draft.Name, func() Ingredient {
			return Ingredient{Name: draft.Name}
		})
		if err != nil {
			return Ingredient{}, s.storeError(operation, "ingredient_upsert_failed", err, conflictIngredientName,
				zap.String("ingredient_name", draft.Name))
		}
		return ingredient, nil
	}

	var ingredient Ingredient
	err := tx.Where("id = ?", draft.IngredientID).Take(&ingredient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Ingredient{}, NewValidationError(field, fmt.Sprintf("Invalid ingredient_id %d", draft.IngredientID))
	}
	if err != nil {
		return Ingredient{}, s.storeError(operation, "ingredient_select_failed", err, conflictIngredientName,
			zap.Int64("ingredient_id", draft.IngredientID))
	}
	return ingredient, nil
}

func (s *Service) insertLink(tx *gorm.DB, operation string, recipeID, ingredientID int64, draft IngredientDraft) error {
	link := IngredientLink{
		RecipeID:     recipeID,
		IngredientID: ingredientID,
		Amount:       draft.Amount,
		Unit:         string(draft.Unit),
		Specifier:    draft.Specifier,
	}
	if err := tx.Create(&link).Error; err != nil {
		return s.storeError(operation, "link_insert_failed", err, conflictIngredientInRecipe,
			zap.Int64("recipe_id", recipeID),
			zap.Int64("ingredient_id", ingredientID))
	}
	return nil
}

// removeLink deletes an ingredient link unless its ingredient is produced by
// a recipe.
func (s *Service) removeLink(tx *gorm.DB, operation string, link IngredientLink) error {
	var ingredient Ingredient
	if err := tx.Where("id = ?", link.IngredientID).Take(&ingredient).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return s.storeError(operation, "ingredient_select_failed", err, conflictIngredientName,
			zap.Int64("ingredient_id", link.IngredientID))
	}
	if ingredient.RecipeID != nil {
		return &ConflictError{Message: fmt.Sprintf("%s is made from another recipe and cannot be removed", ingredient.Name)}
	}
	err := tx.Where("recipe_id = ? AND ingredient_id = ?", link.RecipeID, link.IngredientID).Delete(&IngredientLink{}).Error
	if err != nil {
		return s.storeError(operation, "link_delete_failed", err, conflictIngredientInRecipe,
			zap.Int64("recipe_id", link.RecipeID),
			zap.Int64("ingredient_id", link.IngredientID))
	}
	return nil
}

// reconcileLinks makes the stored links of a recipe match drafts and returns
// the number of rows written.
func (s *Service) reconcileLinks(tx *gorm.DB, operation string, recipeID int64, drafts []IngredientDraft) (int, error) {
	var existing []IngredientLink
	if err := tx.Where("recipe_id = ?", recipeID).Find(&existing).Error; err != nil {
		return 0, s.storeError(operation, "links_select_failed", err, conflictIngredientInRecipe,
			zap.Int64("recipe_id", recipeID))
	}
	current := make(map[int64]IngredientLink, len(existing))
	for _, link := range existing {
		current[link.IngredientID] = link
	}

	mutations := 0
	requested := make(map[int64]struct{}, len(drafts))
	for _, draft := range drafts {
		ingredient, err := s.resolveIngredient(tx, operation, "ingredients", draft)
		if err != nil {
			return 0, err
		}
		if _, dup := requested[ingredient.ID]; dup {
			return 0, NewValidationError("ingredients", fmt.Sprintf("ingredient %d appears more than once", ingredient.ID))
		}
		requested[ingredient.ID] = struct{}{}

		link, ok := current[ingredient.ID]
		if !ok {
			if err := s.insertLink(tx, operation, recipeID, ingredient.ID, draft); err != nil {
				return 0, err
			}
			mutations++
			continue
		}
		if link.Amount.Equal(draft.Amount) && link.Unit == string(draft.Unit) && link.Specifier == draft.Specifier {
			continue
		}
		err = tx.Model(&IngredientLink{}).
			Where("recipe_id = ? AND ingredient_id = ?", recipeID, ingredient.ID).
			Updates(map[string]interface{}{
				"amount":    draft.Amount,
				"unit":      string(draft.Unit),
				"specifier": draft.Specifier,
			}).Error
		if err != nil {
			return 0, s.storeError(operation, "link_update_failed", err, conflictIngredientInRecipe,
				zap.Int64("recipe_id", recipeID),
				zap.Int64("ingredient_id", ingredient.ID))
		}
		mutations++
	}

	for _, link := range existing {
		if _, keep := requested[link.IngredientID]; keep {
			continue
		}
		if err := s.removeLink(tx, operation, link); err != nil {
			return 0, err
		}
		mutations++
	}
	return mutations, nil
}

func (s *Service) requireTags(tx *gorm.DB, operation string, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	var found []int64
	if err := tx.Model(&Tag{}).Where("id IN ?", tagIDs).Pluck("id", &found).Error; err != nil {
		return s.storeError(operation, "tags_select_failed", err, conflictTagValue)
	}
	known := make(map[int64]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	verr := &ValidationError{}
	for _, id := range tagIDs {
		if _, ok := known[id]; !ok {
			verr.Add("tags", fmt.Sprintf("Invalid tag ID %d", id))
		}
	}
	return verr.orNil()
}

func (s *Service) insertTagLinks(tx *gorm.DB, operation string, recipeID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]RecipeTag, len(tagIDs))
	for i, id := range tagIDs {
		links[i] = RecipeTag{RecipeID: recipeID, TagID: id}
	}
	if err := tx.Create(&links).Error; err != nil {
		return s.storeError(operation, "tag_links_insert_failed", err, "That tag is already on the recipe",
			zap.Int64("recipe_id", recipeID))
	}
	return nil
}

// replaceTags makes the tag set of a recipe equal tagIDs and returns the
// number of rows written.
func (s *Service) replaceTags(tx *gorm.DB, operation string, recipeID int64, tagIDs []int64) (int, error) {
	if err := s.requireTags(tx, operation, tagIDs); err != nil {
		return 0, err
	}
	var current []int64
	if err := tx.Model(&RecipeTag{}).Where("recipe_id = ?", recipeID).Pluck("tag_id", &current).Error; err != nil {
		return 0, s.storeError(operation, "tag_links_select_failed", err, conflictTagValue,
			zap.Int64("recipe_id", recipeID))
	}

	wanted := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		wanted[id] = struct{}{}
	}
	stored := make(map[int64]struct{}, len(current))
	var removed []int64
	for _, id := range current {
		stored[id] = struct{}{}
		if _, ok := wanted[id]; !ok {
			removed = append(removed, id)
		}
	}
	var added []int64
	for _, id := range tagIDs {
		if _, ok := stored[id]; !ok {
			added = append(added, id)
		}
	}

	if len(removed) > 0 {
		if err := tx.Where("recipe_id = ? AND tag_id IN ?", recipeID, removed).Delete(&RecipeTag{}).Error; err != nil {
			return 0, s.storeError(operation, "tag_links_delete_failed", err, conflictTagValue,
				zap.Int64("recipe_id", recipeID))
		}
	}
	if err := s.insertTagLinks(tx, operation, recipeID, added); err != nil {
		return 0, err
	}
	return len(removed) + len(added), nil
}
