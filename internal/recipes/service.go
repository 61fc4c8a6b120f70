package recipes

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const tracerName = "github.com/willsmith28/Cookbook/internal/recipes"

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingActor    = errors.New("acting user is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew             = "recipes.service.new"
	opCreateRecipe           = "recipes.create_recipe"
	opUpdateRecipe           = "recipes.update_recipe"
	opGetRecipe              = "recipes.get_recipe"
	opListRecipes            = "recipes.list_recipes"
	opDeleteRecipe           = "recipes.delete_recipe"
	opFavoriteRecipe         = "recipes.favorite_recipe"
	opUnfavoriteRecipe       = "recipes.unfavorite_recipe"
	opListIngredients        = "recipes.list_ingredients"
	opGetIngredient          = "recipes.get_ingredient"
	opCreateIngredient       = "recipes.create_ingredient"
	opDeleteIngredient       = "recipes.delete_ingredient"
	opListTags               = "recipes.list_tags"
	opGetTag                 = "recipes.get_tag"
	opCreateTag              = "recipes.create_tag"
	opListRecipeIngredients  = "recipes.list_recipe_ingredients"
	opAddRecipeIngredient    = "recipes.add_recipe_ingredient"
	opGetRecipeIngredient    = "recipes.get_recipe_ingredient"
	opUpdateRecipeIngredient = "recipes.update_recipe_ingredient"
	opRemoveRecipeIngredient = "recipes.remove_recipe_ingredient"
	opListSteps              = "recipes.list_steps"
	opAppendStep             = "recipes.append_step"
	opGetStep                = "recipes.get_step"
	opUpdateStep             = "recipes.update_step"
	opDeleteStep             = "recipes.delete_step"
	opListRecipeTags         = "recipes.list_recipe_tags"
	opAddRecipeTag           = "recipes.add_recipe_tag"
	opRemoveRecipeTag        = "recipes.remove_recipe_tag"
	opRemoveAuthor           = "recipes.remove_author"
)

const (
	conflictRecipeName         = "A recipe with that name already exists"
	conflictIngredientName     = "An ingredient with that name already exists"
	conflictTagValue           = "A tag with that value already exists"
	conflictIngredientInRecipe = "That ingredient is already in the recipe"
	conflictStepOrder          = "Steps were changed concurrently, retry the request"
)

// Hooks observes completed service operations.
type Hooks interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
}

// ReferenceGuard reports whether another package still references a recipe.
// Guards run inside the delete transaction.
type ReferenceGuard interface {
	RecipeReferenced(tx *gorm.DB, recipeID int64) (bool, error)
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	Hooks    Hooks
	Guards   []ReferenceGuard
}

// Service implements the recipe aggregate operations.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
	hooks  Hooks
	guards []ReferenceGuard
	tracer trace.Tracer
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

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
		hooks:  cfg.Hooks,
		guards: append([]ReferenceGuard(nil), cfg.Guards...),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// AddGuard registers a guard consulted before recipes are deleted.
func (s *Service) AddGuard(guard ReferenceGuard) {
	if guard != nil {
		s.guards = append(s.guards, guard)
	}
}

// observe wraps an operation in a span and reports its outcome to the hooks.
func (s *Service) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	if err != nil && !IsDomainError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, Outcome(err))
	}
	if s.hooks != nil {
		s.hooks.ObserveOperation(operation, Outcome(err), time.Since(started))
	}
	return err
}

func (s *Service) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// storeError converts constraint failures into ConflictError and wraps
// anything else as a ServiceError after logging it once.
func (s *Service) storeError(operation, reason string, err error, conflictMessage string, fields ...zap.Field) error {
	translated := translateStoreError(err, conflictMessage)
	if IsDomainError(translated) {
		return translated
	}
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	allFields := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("recipes service error", allFields...)
}

func requireActor(operation string, actor Actor) error {
	if actor.UserID == "" {
		return newServiceError(operation, "missing_actor", errMissingActor)
	}
	return nil
}

// lockRecipe loads a recipe for update.
func (s *Service) lockRecipe(tx *gorm.DB, operation string, recipeID int64) (Recipe, error) {
	var recipe Recipe
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", recipeID).
		Take(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Recipe{}, &NotFoundError{Resource: ResourceRecipe}
	}
	if err != nil {
		return Recipe{}, s.storeError(operation, "recipe_select_failed", err, conflictRecipeName,
			zap.Int64("recipe_id", recipeID))
	}
	return recipe, nil
}

// lockOwnedRecipe loads a recipe for update and applies the ownership policy.
func (s *Service) lockOwnedRecipe(tx *gorm.DB, operation string, recipeID int64, actor Actor) (Recipe, error) {
	recipe, err := s.lockRecipe(tx, operation, recipeID)
	if err != nil {
		return Recipe{}, err
	}
	if err := authorizeRecipe(recipe, actor); err != nil {
		return Recipe{}, err
	}
	return recipe, nil
}

func (s *Service) recipeExists(db *gorm.DB, operation string, recipeID int64) error {
	var count int64
	if err := db.Model(&Recipe{}).Where("id = ?", recipeID).Count(&count).Error; err != nil {
		return s.storeError(operation, "recipe_select_failed", err, conflictRecipeName,
			zap.Int64("recipe_id", recipeID))
	}
	if count == 0 {
		return &NotFoundError{Resource: ResourceRecipe}
	}
	return nil
}

// touch refreshes last_updated_on after a sub-resource of the recipe changed.
func (s *Service) touch(tx *gorm.DB, operation string, recipeID int64) error {
	err := tx.Model(&Recipe{}).
		Where("id = ?", recipeID).
		Update("last_updated_on", s.now()).Error
	if err != nil {
		return s.storeError(operation, "recipe_touch_failed", err, conflictRecipeName,
			zap.Int64("recipe_id", recipeID))
	}
	return nil
}

// getOrCreate looks a row up by a unique column and inserts it on a miss. An
// insert that loses a uniqueness race is retried as a lookup once. The insert
// runs in a savepoint so the surrounding transaction stays usable.
func getOrCreate[T any](tx *gorm.DB, column string, value interface{}, build func() T) (T, bool, error) {
	var row T
	err := tx.Where(column+" = ?", value).Take(&row).Error
	if err == nil {
		return row, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return row, false, err
	}

	created := build()
	err = tx.Transaction(func(savepoint *gorm.DB) error {
		return savepoint.Create(&created).Error
	})
	if err == nil {
		return created, true, nil
	}
	if !IsUniqueViolation(err) {
		return row, false, err
	}

	var existing T
	if lookupErr := tx.Where(column+" = ?", value).Take(&existing).Error; lookupErr != nil {
		// The violated constraint is on another column.
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return existing, false, err
		}
		return existing, false, lookupErr
	}
	return existing, false, nil
}

func (s *Service) loadDetail(db *gorm.DB, operation string, recipeID int64) (RecipeDetail, error) {
	var recipe Recipe
	err := db.Where("id = ?", recipeID).Take(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RecipeDetail{}, &NotFoundError{Resource: ResourceRecipe}
	}
	if err != nil {
		return RecipeDetail{}, s.storeError(operation, "recipe_select_failed", err, conflictRecipeName,
			zap.Int64("recipe_id", recipeID))
	}

	details, err := s.assembleRecipes(db, operation, []Recipe{recipe})
	if err != nil {
		return RecipeDetail{}, err
	}
	return details[0], nil
}

// assembleRecipes loads the relations for a batch of recipes and returns the
// details in the same order as the input.
func (s *Service) assembleRecipes(db *gorm.DB, operation string, recipes []Recipe) ([]RecipeDetail, error) {
	if len(recipes) == 0 {
		return []RecipeDetail{}, nil
	}
	ids := make([]int64, len(recipes))
	for i, recipe := range recipes {
		ids[i] = recipe.ID
	}

	var links []IngredientLink
	if err := db.Where("recipe_id IN ?", ids).Order("recipe_id, ingredient_id").Find(&links).Error; err != nil {
		return nil, s.storeError(operation, "links_select_failed", err, conflictIngredientInRecipe)
	}
	var steps []Step
	if err := db.Where("recipe_id IN ?", ids).Order("recipe_id, step_order").Find(&steps).Error; err != nil {
		return nil, s.storeError(operation, "steps_select_failed", err, conflictStepOrder)
	}
	var tagLinks []RecipeTag
	if err := db.Where("recipe_id IN ?", ids).Order("recipe_id, tag_id").Find(&tagLinks).Error; err != nil {
		return nil, s.storeError(operation, "tags_select_failed", err, conflictTagValue)
	}

	linksByRecipe := make(map[int64][]IngredientLink, len(recipes))
	for _, link := range links {
		linksByRecipe[link.RecipeID] = append(linksByRecipe[link.RecipeID], link)
	}
	stepsByRecipe := make(map[int64][]Step, len(recipes))
	for _, step := range steps {
		stepsByRecipe[step.RecipeID] = append(stepsByRecipe[step.RecipeID], step)
	}
	tagsByRecipe := make(map[int64][]int64, len(recipes))
	for _, link := range tagLinks {
		tagsByRecipe[link.RecipeID] = append(tagsByRecipe[link.RecipeID], link.TagID)
	}

	details := make([]RecipeDetail, len(recipes))
	for i, recipe := range recipes {
		details[i] = AssembleDetail(recipe, linksByRecipe[recipe.ID], stepsByRecipe[recipe.ID], tagsByRecipe[recipe.ID])
	}
	return details, nil
}
