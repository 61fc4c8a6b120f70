package recipes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var fixedNow = time.Unix(1700000600, 0).UTC()

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:recipes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	current := fixedNow
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			current = current.Add(time.Second)
			return current
		},
	})
	if err != nil {
		t.Fatalf("failed to construct recipes service: %v", err)
	}
	return service, db
}

func mustPayload(t *testing.T, raw string) Payload {
	t.Helper()
	decoder := json.NewDecoder(bytes.NewBufferString(raw))
	decoder.UseNumber()
	var payload Payload
	if err := decoder.Decode(&payload); err != nil {
		t.Fatalf("invalid payload fixture: %v", err)
	}
	return payload
}

func mustDraft(t *testing.T, raw string) RecipeDraft {
	t.Helper()
	draft, err := ValidateRecipePayload(mustPayload(t, raw))
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	return draft
}

func mustPatch(t *testing.T, raw string) RecipePatch {
	t.Helper()
	patch, err := ValidateRecipePatch(mustPayload(t, raw))
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	return patch
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func seedIngredient(t *testing.T, db *gorm.DB, name string) Ingredient {
	t.Helper()
	ingredient := Ingredient{Name: name}
	if err := db.Create(&ingredient).Error; err != nil {
		t.Fatalf("failed to seed ingredient %q: %v", name, err)
	}
	return ingredient
}

func seedTag(t *testing.T, db *gorm.DB, value string) Tag {
	t.Helper()
	tag := Tag{Value: value}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("failed to seed tag %q: %v", value, err)
	}
	return tag
}

func countRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

func storedOrders(t *testing.T, db *gorm.DB, recipeID int64) []int {
	t.Helper()
	var orders []int
	if err := db.Model(&Step{}).Where("recipe_id = ?", recipeID).Order("step_order").Pluck("step_order", &orders).Error; err != nil {
		t.Fatalf("failed to load step orders: %v", err)
	}
	return orders
}

func assertContiguous(t *testing.T, db *gorm.DB, recipeID int64) {
	t.Helper()
	for index, order := range storedOrders(t, db, recipeID) {
		if order != index+1 {
			t.Fatalf("expected contiguous step orders, got %v", storedOrders(t, db, recipeID))
		}
	}
}

// writeCounter counts rows written through gorm after it is installed.
type writeCounter struct {
	rows int64
}

func countWrites(t *testing.T, db *gorm.DB) *writeCounter {
	t.Helper()
	counter := &writeCounter{}
	record := func(tx *gorm.DB) {
		if tx.Error == nil {
			counter.rows += tx.RowsAffected
		}
	}
	if err := db.Callback().Create().After("gorm:create").Register("test:count_create", record); err != nil {
		t.Fatalf("failed to register create callback: %v", err)
	}
	if err := db.Callback().Update().After("gorm:update").Register("test:count_update", record); err != nil {
		t.Fatalf("failed to register update callback: %v", err)
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("test:count_delete", record); err != nil {
		t.Fatalf("failed to register delete callback: %v", err)
	}
	return counter
}

type recordingHooks struct {
	outcomes map[string][]string
}

func (h *recordingHooks) ObserveOperation(operation, outcome string, _ time.Duration) {
	if h.outcomes == nil {
		h.outcomes = make(map[string][]string)
	}
	h.outcomes[operation] = append(h.outcomes[operation], outcome)
}
