package database

import (
	"errors"
	"time"

	"github.com/willsmith28/Cookbook/internal/recipes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeStepOrders       = "2024-02-01_normalize_step_orders"
	migrationDetachOrphanedIngredients = "2024-02-14_detach_orphaned_ingredient_outputs"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeStepOrders, apply: normalizeStepOrders},
		{name: migrationDetachOrphanedIngredients, apply: detachOrphanedIngredients},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeStepOrders renumbers the steps of every recipe to 1..N, keeping
// their relative order. Imported data may contain gaps.
func normalizeStepOrders(db *gorm.DB) error {
	var steps []recipes.Step
	if err := db.Order("recipe_id, step_order").Find(&steps).Error; err != nil {
		return err
	}

	byRecipe := make(map[int64][]recipes.Step)
	var recipeIDs []int64
	for _, step := range steps {
		if _, seen := byRecipe[step.RecipeID]; !seen {
			recipeIDs = append(recipeIDs, step.RecipeID)
		}
		byRecipe[step.RecipeID] = append(byRecipe[step.RecipeID], step)
	}

	for _, recipeID := range recipeIDs {
		current := byRecipe[recipeID]
		contiguous := true
		for index, step := range current {
			if step.Order != index+1 {
				contiguous = false
				break
			}
		}
		if contiguous {
			continue
		}
		if err := db.Where("recipe_id = ?", recipeID).Delete(&recipes.Step{}).Error; err != nil {
			return err
		}
		renumbered := make([]recipes.Step, len(current))
		for index, step := range current {
			renumbered[index] = recipes.Step{RecipeID: recipeID, Order: index + 1, Instruction: step.Instruction}
		}
		if err := db.Create(&renumbered).Error; err != nil {
			return err
		}
	}
	return nil
}

// detachOrphanedIngredients clears recipe outputs that point at recipes that
// no longer exist.
func detachOrphanedIngredients(db *gorm.DB) error {
	return db.Model(&recipes.Ingredient{}).
		Where("recipe_id IS NOT NULL AND recipe_id NOT IN (?)", db.Model(&recipes.Recipe{}).Select("id")).
		Update("recipe_id", nil).Error
}
