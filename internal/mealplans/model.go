package mealplans

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Meal identifies the meal a plan is for.
type Meal string

const (
	MealBreakfast Meal = "B"
	MealLunch     Meal = "L"
	MealDinner    Meal = "D"
	MealSnack     Meal = "S"
)

var mealLabels = map[Meal]string{
	MealBreakfast: "Breakfast",
	MealLunch:     "Lunch",
	MealDinner:    "Dinner",
	MealSnack:     "Snack",
}

// ParseMeal accepts a meal code or its label.
func ParseMeal(raw string) (Meal, bool) {
	trimmed := strings.TrimSpace(raw)
	for code, label := range mealLabels {
		if trimmed == string(code) || strings.EqualFold(trimmed, label) {
			return code, true
		}
	}
	return "", false
}

// MealPlan schedules a recipe for a user on a day.
type MealPlan struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RecipeID    int64     `gorm:"column:recipe_id;not null;index"`
	PlannedDate string    `gorm:"column:planned_date;size:10;not null;index"`
	Meal        *string   `gorm:"column:meal;size:1"`
	Cooked      bool      `gorm:"column:cooked;not null;default:false"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing meal plans.
func (MealPlan) TableName() string {
	return "meal_plans"
}

// Models lists the tables owned by the mealplans package.
func Models() []interface{} {
	return []interface{}{&MealPlan{}}
}

// PlanView is the representation of a meal plan.
type PlanView struct {
	ID          int64   `json:"id"`
	RecipeID    int64   `json:"recipe_id"`
	PlannedDate string  `json:"planned_date"`
	Meal        *string `json:"meal"`
	Cooked      bool    `json:"cooked"`
	UserID      string  `json:"user_id"`
}

func viewPlan(plan MealPlan) PlanView {
	return PlanView{
		ID:          plan.ID,
		RecipeID:    plan.RecipeID,
		PlannedDate: plan.PlannedDate,
		Meal:        plan.Meal,
		Cooked:      plan.Cooked,
		UserID:      plan.UserID,
	}
}
