package mealplans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/willsmith28/Cookbook/internal/recipes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRecentDays = 4

const (
	opServiceNew = "mealplans.service.new"
	opList       = "mealplans.list"
	opGet        = "mealplans.get"
	opCreate     = "mealplans.create"
	opUpdate     = "mealplans.update"
	opDelete     = "mealplans.delete"
	opReferenced = "mealplans.recipe_referenced"
	opRemoveUser = "mealplans.remove_user"
)

const resourceMealPlan = "Meal plan"

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps unexpected meal plan failures.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// PlanInput describes a meal plan to create.
type PlanInput struct {
	RecipeID    int64
	PlannedDate string
	Meal        *string
	Cooked      bool
}

// PlanPatch is a partial update. HasMeal with a nil Meal clears the meal.
type PlanPatch struct {
	RecipeID    *int64
	PlannedDate *string
	Meal        *string
	HasMeal     bool
	Cooked      *bool
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	Logger     *zap.Logger
	RecentDays int
}

// Service manages meal plans. Plans are visible to and editable by their
// owner only, unless the actor is privileged.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	logger     *zap.Logger
	recentDays int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	recentDays := cfg.RecentDays
	if recentDays <= 0 {
		recentDays = defaultRecentDays
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger, recentDays: recentDays}, nil
}

// List returns the actor's plans ordered by date. Unless historical is set,
// plans older than the recent window are left out.
func (s *Service) List(ctx context.Context, actor recipes.Actor, historical bool) ([]PlanView, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID)
	if !historical {
		cutoff := s.clock().UTC().AddDate(0, 0, -s.recentDays).Format(dateLayout)
		query = query.Where("planned_date >= ?", cutoff)
	}
	var plans []MealPlan
	if err := query.Order("planned_date").Order("id").Find(&plans).Error; err != nil {
		s.logError(opList, "plans_select_failed", err, zap.String("user_id", actor.UserID))
		return nil, newServiceError(opList, "plans_select_failed", err)
	}
	views := make([]PlanView, len(plans))
	for i, plan := range plans {
		views[i] = viewPlan(plan)
	}
	return views, nil
}

// Get returns one plan of the actor.
func (s *Service) Get(ctx context.Context, planID int64, actor recipes.Actor) (PlanView, error) {
	plan, err := s.loadOwned(s.db.WithContext(ctx), opGet, planID, actor)
	if err != nil {
		return PlanView{}, err
	}
	return viewPlan(plan), nil
}

// Create schedules a recipe for the actor.
func (s *Service) Create(ctx context.Context, input PlanInput, actor recipes.Actor) (PlanView, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return PlanView{}, &recipes.ForbiddenError{}
	}
	date, err := normalizeDate(input.PlannedDate)
	if err != nil {
		return PlanView{}, err
	}
	meal, err := normalizeMeal(input.Meal)
	if err != nil {
		return PlanView{}, err
	}

	plan := MealPlan{
		RecipeID:    input.RecipeID,
		PlannedDate: date,
		Meal:        meal,
		Cooked:      input.Cooked,
		UserID:      actor.UserID,
		CreatedAt:   s.clock().UTC(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireRecipe(tx, opCreate, input.RecipeID); err != nil {
			return err
		}
		if err := tx.Create(&plan).Error; err != nil {
			s.logError(opCreate, "plan_insert_failed", err, zap.Int64("recipe_id", input.RecipeID))
			return newServiceError(opCreate, "plan_insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return PlanView{}, err
	}
	return viewPlan(plan), nil
}

// Update applies a partial update to one of the actor's plans.
func (s *Service) Update(ctx context.Context, planID int64, patch PlanPatch, actor recipes.Actor) (PlanView, error) {
	var view PlanView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.loadOwned(tx, opUpdate, planID, actor)
		if err != nil {
			return err
		}

		updates := make(map[string]interface{})
		if patch.RecipeID != nil && *patch.RecipeID != plan.RecipeID {
			if err := s.requireRecipe(tx, opUpdate, *patch.RecipeID); err != nil {
				return err
			}
			updates["recipe_id"] = *patch.RecipeID
			plan.RecipeID = *patch.RecipeID
		}
		if patch.PlannedDate != nil {
			date, err := normalizeDate(*patch.PlannedDate)
			if err != nil {
				return err
			}
			if date != plan.PlannedDate {
				updates["planned_date"] = date
				plan.PlannedDate = date
			}
		}
		if patch.HasMeal {
			meal, err := normalizeMeal(patch.Meal)
			if err != nil {
				return err
			}
			updates["meal"] = meal
			plan.Meal = meal
		}
		if patch.Cooked != nil && *patch.Cooked != plan.Cooked {
			updates["cooked"] = *patch.Cooked
			plan.Cooked = *patch.Cooked
		}

		view = viewPlan(plan)
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&MealPlan{}).Where("id = ?", planID).Updates(updates).Error; err != nil {
			s.logError(opUpdate, "plan_update_failed", err, zap.Int64("plan_id", planID))
			return newServiceError(opUpdate, "plan_update_failed", err)
		}
		return nil
	})
	if err != nil {
		return PlanView{}, err
	}
	return view, nil
}

// Delete removes one of the actor's plans.
func (s *Service) Delete(ctx context.Context, planID int64, actor recipes.Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadOwned(tx, opDelete, planID, actor); err != nil {
			return err
		}
		if err := tx.Where("id = ?", planID).Delete(&MealPlan{}).Error; err != nil {
			s.logError(opDelete, "plan_delete_failed", err, zap.Int64("plan_id", planID))
			return newServiceError(opDelete, "plan_delete_failed", err)
		}
		return nil
	})
}

// RecipeReferenced keeps recipes with meal plans from being deleted.
func (s *Service) RecipeReferenced(tx *gorm.DB, recipeID int64) (bool, error) {
	var count int64
	if err := tx.Model(&MealPlan{}).Where("recipe_id = ?", recipeID).Count(&count).Error; err != nil {
		s.logError(opReferenced, "plans_count_failed", err, zap.Int64("recipe_id", recipeID))
		return false, newServiceError(opReferenced, "plans_count_failed", err)
	}
	return count > 0, nil
}

// RemoveUser deletes the plans of a removed user inside the caller's
// transaction.
func (s *Service) RemoveUser(tx *gorm.DB, userID string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&MealPlan{}).Error; err != nil {
		s.logError(opRemoveUser, "plans_delete_failed", err, zap.String("user_id", userID))
		return newServiceError(opRemoveUser, "plans_delete_failed", err)
	}
	return nil
}

func (s *Service) loadOwned(db *gorm.DB, operation string, planID int64, actor recipes.Actor) (MealPlan, error) {
	var plan MealPlan
	err := db.Where("id = ?", planID).Take(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MealPlan{}, &recipes.NotFoundError{Resource: resourceMealPlan}
	}
	if err != nil {
		s.logError(operation, "plan_select_failed", err, zap.Int64("plan_id", planID))
		return MealPlan{}, newServiceError(operation, "plan_select_failed", err)
	}
	owner := plan.UserID
	if !recipes.Authorize(&owner, actor) {
		return MealPlan{}, &recipes.ForbiddenError{}
	}
	return plan, nil
}

func (s *Service) requireRecipe(tx *gorm.DB, operation string, recipeID int64) error {
	var count int64
	if err := tx.Model(&recipes.Recipe{}).Where("id = ?", recipeID).Count(&count).Error; err != nil {
		s.logError(operation, "recipe_select_failed", err, zap.Int64("recipe_id", recipeID))
		return newServiceError(operation, "recipe_select_failed", err)
	}
	if count == 0 {
		return recipes.NewValidationError("recipe_id", fmt.Sprintf("Invalid recipe_id %d", recipeID))
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("mealplans service error", allFields...)
}

func normalizeDate(raw string) (string, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", recipes.NewValidationError("planned_date", "planned_date must be a date in YYYY-MM-DD format")
	}
	return parsed.Format(dateLayout), nil
}

func normalizeMeal(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	meal, ok := ParseMeal(*raw)
	if !ok {
		return nil, recipes.NewValidationError("meal", "Invalid Meal")
	}
	code := string(meal)
	return &code, nil
}
