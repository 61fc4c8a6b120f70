package recipes

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListSteps returns the steps of a recipe in order.
func (s *Service) ListSteps(ctx context.Context, recipeID int64) ([]StepView, error) {
	var views []StepView
	err := s.observe(ctx, opListSteps, func(ctx context.Context) error {
		db := s.db.WithContext(ctx)
		if err := s.recipeExists(db, opListSteps, recipeID); err != nil {
			return err
		}
		steps, err := s.loadSteps(db, opListSteps, recipeID)
		if err != nil {
			return err
		}
		views = make([]StepView, len(steps))
		for i, step := range steps {
			views[i] = StepView{Order: step.Order, Instruction: step.Instruction}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// AppendStep adds a step after the current last step.
func (s *Service) AppendStep(ctx context.Context, recipeID int64, instruction string, actor Actor) (StepView, error) {
	var view StepView
	err := s.observe(ctx, opAppendStep, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opAppendStep, recipeID, actor); err != nil {
				return err
			}
			count, err := s.countSteps(tx, opAppendStep, recipeID)
			if err != nil {
				return err
			}
			change := StepChange{Order: int(count) + 1, Instruction: instruction}
			if err := s.insertSteps(tx, opAppendStep, recipeID, []StepChange{change}); err != nil {
				return err
			}
			if err := s.touch(tx, opAppendStep, recipeID); err != nil {
				return err
			}
			view = StepView{Order: change.Order, Instruction: change.Instruction}
			return nil
		})
	})
	if err != nil {
		return StepView{}, err
	}
	return view, nil
}

// GetStep returns one step of a recipe.
func (s *Service) GetStep(ctx context.Context, recipeID int64, order int) (StepView, error) {
	var view StepView
	err := s.observe(ctx, opGetStep, func(ctx context.Context) error {
		db := s.db.WithContext(ctx)
		if err := s.recipeExists(db, opGetStep, recipeID); err != nil {
			return err
		}
		step, err := s.findStep(db, opGetStep, recipeID, order)
		if err != nil {
			return err
		}
		view = StepView{Order: step.Order, Instruction: step.Instruction}
		return nil
	})
	if err != nil {
		return StepView{}, err
	}
	return view, nil
}

// UpdateStep replaces the instruction of a step. The order never changes.
func (s *Service) UpdateStep(ctx context.Context, recipeID int64, order int, instruction string, actor Actor) (StepView, error) {
	var view StepView
	err := s.observe(ctx, opUpdateStep, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opUpdateStep, recipeID, actor); err != nil {
				return err
			}
			step, err := s.findStep(tx, opUpdateStep, recipeID, order)
			if err != nil {
				return err
			}
			view = StepView{Order: order, Instruction: instruction}
			if step.Instruction == instruction {
				return nil
			}
			plan := StepPlan{Updates: []StepChange{{Order: order, Instruction: instruction}}}
			if err := s.applyStepPlan(tx, opUpdateStep, recipeID, plan); err != nil {
				return err
			}
			return s.touch(tx, opUpdateStep, recipeID)
		})
	})
	if err != nil {
		return StepView{}, err
	}
	return view, nil
}

// DeleteStep removes the last step of a recipe. Deleting any other step is a
// SequencingError since it would leave a gap in the order.
func (s *Service) DeleteStep(ctx context.Context, recipeID int64, order int, actor Actor) error {
	return s.observe(ctx, opDeleteStep, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx *gorm.DB) error {
			if _, err := s.lockOwnedRecipe(tx, opDeleteStep, recipeID, actor); err != nil {
				return err
			}
			if _, err := s.findStep(tx, opDeleteStep, recipeID, order); err != nil {
				return err
			}
			count, err := s.countSteps(tx, opDeleteStep, recipeID)
			if err != nil {
				return err
			}
			if int64(order) != count {
				return &SequencingError{Order: order, LastOrder: int(count)}
			}
			if err := s.applyStepPlan(tx, opDeleteStep, recipeID, StepPlan{Deletes: []int{order}}); err != nil {
				return err
			}
			return s.touch(tx, opDeleteStep, recipeID)
		})
	})
}

// reconcileSteps makes the stored steps equal requested and returns the
// number of rows written.
func (s *Service) reconcileSteps(tx *gorm.DB, operation string, recipeID int64, requested []string) (int, error) {
	existing, err := s.loadSteps(tx, operation, recipeID)
	if err != nil {
		return 0, err
	}
	plan := ReconcileSteps(existing, requested)
	if plan.Empty() {
		return 0, nil
	}
	if err := s.applyStepPlan(tx, operation, recipeID, plan); err != nil {
		return 0, err
	}
	s.logger.Debug("steps reconciled",
		zap.Int64("recipe_id", recipeID),
		zap.Int("deleted", len(plan.Deletes)),
		zap.Int("updated", len(plan.Updates)),
		zap.Int("inserted", len(plan.Inserts)))
	return plan.Mutations(), nil
}

func (s *Service) applyStepPlan(tx *gorm.DB, operation string, recipeID int64, plan StepPlan) error {
	if len(plan.Deletes) > 0 {
		err := tx.Where("recipe_id = ? AND step_order IN ?", recipeID, plan.Deletes).Delete(&Step{}).Error
		if err != nil {
			return s.storeError(operation, "steps_delete_failed", err, conflictStepOrder,
				zap.Int64("recipe_id", recipeID))
		}
	}
	for _, change := range plan.Updates {
		err := tx.Model(&Step{}).
			Where("recipe_id = ? AND step_order = ?", recipeID, change.Order).
			Update("instruction", change.Instruction).Error
		if err != nil {
			return s.storeError(operation, "step_update_failed", err, conflictStepOrder,
				zap.Int64("recipe_id", recipeID),
				zap.Int("order", change.Order))
		}
	}
	return s.insertSteps(tx, operation, recipeID, plan.Inserts)
}

func (s *Service) insertSteps(tx *gorm.DB, operation string, recipeID int64, changes []StepChange) error {
	if len(changes) == 0 {
		return nil
	}
	rows := make([]Step, len(changes))
	for i, change := range changes {
		rows[i] = Step{RecipeID: recipeID, Order: change.Order, Instruction: change.Instruction}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return s.storeError(operation, "steps_insert_failed", err, conflictStepOrder,
			zap.Int64("recipe_id", recipeID))
	}
	return nil
}

func (s *Service) loadSteps(db *gorm.DB, operation string, recipeID int64) ([]Step, error) {
	var steps []Step
	if err := db.Where("recipe_id = ?", recipeID).Order("step_order").Find(&steps).Error; err != nil {
		return nil, s.storeError(operation, "steps_select_failed", err, conflictStepOrder,
			zap.Int64("recipe_id", recipeID))
	}
	return steps, nil
}

func (s *Service) findStep(db *gorm.DB, operation string, recipeID int64, order int) (Step, error) {
	var step Step
	err := db.Where("recipe_id = ? AND step_order = ?", recipeID, order).Take(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Step{}, &NotFoundError{Resource: ResourceStep}
	}
	if err != nil {
		return Step{}, s.storeError(operation, "step_select_failed", err, conflictStepOrder,
			zap.Int64("recipe_id", recipeID),
			zap.Int("order", order))
	}
	return step, nil
}

func (s *Service) countSteps(db *gorm.DB, operation string, recipeID int64) (int64, error) {
	var count int64
	if err := db.Model(&Step{}).Where("recipe_id = ?", recipeID).Count(&count).Error; err != nil {
		return 0, s.storeError(operation, "steps_count_failed", err, conflictStepOrder,
			zap.Int64("recipe_id", recipeID))
	}
	return count, nil
}
