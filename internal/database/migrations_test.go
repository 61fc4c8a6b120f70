package database

import (
	"path/filepath"
	"reflect"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/willsmith28/Cookbook/internal/recipes"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func openMigrationDatabase(testContext *testing.T) *gorm.DB {
	testContext.Helper()
	databasePath := filepath.Join(testContext.TempDir(), "migration.db")
	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(Models()...); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func TestApplyMigrationsNormalizesStepOrders(testContext *testing.T) {
	database := openMigrationDatabase(testContext)

	rows := []recipes.Step{
		{RecipeID: 1, Order: 2, Instruction: "chop"},
		{RecipeID: 1, Order: 5, Instruction: "fry"},
		{RecipeID: 1, Order: 9, Instruction: "serve"},
		{RecipeID: 2, Order: 1, Instruction: "boil"},
		{RecipeID: 2, Order: 2, Instruction: "drain"},
	}
	if err := database.Create(&rows).Error; err != nil {
		testContext.Fatalf("failed to insert steps: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored []recipes.Step
	if err := database.Where("recipe_id = ?", 1).Order("step_order").Find(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload steps: %v", err)
	}
	expected := []recipes.Step{
		{RecipeID: 1, Order: 1, Instruction: "chop"},
		{RecipeID: 1, Order: 2, Instruction: "fry"},
		{RecipeID: 1, Order: 3, Instruction: "serve"},
	}
	if !reflect.DeepEqual(stored, expected) {
		testContext.Fatalf("expected renumbered steps %+v, got %+v", expected, stored)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeStepOrders).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsDetachesOrphanedIngredients(testContext *testing.T) {
	database := openMigrationDatabase(testContext)

	recipe := recipes.Recipe{Name: "Stock", Description: "d", Servings: 4, CookTime: "4 hours"}
	if err := database.Create(&recipe).Error; err != nil {
		testContext.Fatalf("failed to insert recipe: %v", err)
	}
	missing := recipe.ID + 100
	kept := recipes.Ingredient{Name: "Chicken Stock", RecipeID: &recipe.ID}
	orphaned := recipes.Ingredient{Name: "Lost Sauce", RecipeID: &missing}
	if err := database.Create(&[]*recipes.Ingredient{&kept, &orphaned}).Error; err != nil {
		testContext.Fatalf("failed to insert ingredients: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var reloaded []recipes.Ingredient
	if err := database.Order("name").Find(&reloaded).Error; err != nil {
		testContext.Fatalf("failed to reload ingredients: %v", err)
	}
	if reloaded[0].RecipeID == nil || *reloaded[0].RecipeID != recipe.ID {
		testContext.Fatalf("expected Chicken Stock to stay linked, got %+v", reloaded[0])
	}
	if reloaded[1].RecipeID != nil {
		testContext.Fatalf("expected Lost Sauce to be detached, got %v", *reloaded[1].RecipeID)
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database := openMigrationDatabase(testContext)
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	for attempt := 0; attempt < 2; attempt++ {
		if err := applyMigrations(database, logger); err != nil {
			testContext.Fatalf("attempt %d failed: %v", attempt+1, err)
		}
	}

	if applied := logs.FilterMessage("database migration applied").Len(); applied != 2 {
		testContext.Fatalf("expected each migration to be applied once, got %d log entries", applied)
	}
	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if count != 2 {
		testContext.Fatalf("expected two migration records, got %d", count)
	}
}

func TestOpenRejectsUnknownDriver(testContext *testing.T) {
	if _, err := Open(Options{Driver: "mysql", DSN: "root@/cookbook"}, nil); err == nil {
		testContext.Fatalf("expected unsupported driver error")
	}
	if _, err := Open(Options{Driver: DriverSQLite}, nil); err == nil {
		testContext.Fatalf("expected missing path error")
	}
}

func TestOpenMigratesSQLite(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "cookbook.db")
	database, err := Open(Options{Driver: DriverSQLite, Path: databasePath}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("Open returned error: %v", err)
	}
	for _, table := range []string{"users", "recipes", "ingredients_in_recipe", "steps", "meal_plans", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
}
