package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/willsmith28/Cookbook/internal/mealplans"
	"github.com/willsmith28/Cookbook/internal/recipes"
)

const isoDateLayout = "2006-01-02"

var errInvalidBody = errors.New("request body must be a JSON object")

var (
	registerOnce sync.Once
	registerErr  error

	errUnsupportedValidator = errors.New("binding validator engine is not go-playground/validator")
)

// registerValidators installs the custom tags on gin's validator engine once
// per process and reports the outcome of that first attempt.
func registerValidators() error {
	registerOnce.Do(func() {
		registerErr = installValidators(binding.Validator.Engine())
	})
	return registerErr
}

// installValidators reports fields by their JSON names and adds the tagkind,
// meal and isodate tags.
func installValidators(engine interface{}) error {
	validate, ok := engine.(*validator.Validate)
	if !ok {
		return errUnsupportedValidator
	}
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	custom := map[string]validator.Func{
		"tagkind": func(fl validator.FieldLevel) bool {
			_, ok := recipes.ParseTagKind(fl.Field().String())
			return ok
		},
		"meal": func(fl validator.FieldLevel) bool {
			_, ok := mealplans.ParseMeal(fl.Field().String())
			return ok
		},
		"isodate": func(fl validator.FieldLevel) bool {
			_, err := time.Parse(isoDateLayout, strings.TrimSpace(fl.Field().String()))
			return err == nil
		},
	}
	for tag, fn := range custom {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s validator: %w", tag, err)
		}
	}
	return nil
}

// decodePayload reads the body as a JSON object, keeping numbers as
// json.Number so decimal amounts are not rounded.
func decodePayload(c *gin.Context) (recipes.Payload, error) {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.UseNumber()
	var payload recipes.Payload
	if err := decoder.Decode(&payload); err != nil || payload == nil {
		return nil, errInvalidBody
	}
	return payload, nil
}

// readBody returns the raw body and the set of top level keys it carries.
func readBody(c *gin.Context) ([]byte, map[string]json.RawMessage, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, nil, errInvalidBody
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(raw), &keys); err != nil || keys == nil {
		return nil, nil, errInvalidBody
	}
	return raw, keys, nil
}

// bindRequest decodes a typed request and runs the binding validators over it.
// Type mismatches and validator failures are reported as a ValidationError.
func bindRequest(c *gin.Context, target interface{}) (map[string]json.RawMessage, error) {
	raw, keys, err := readBody(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, recipes.NewValidationError(typeErr.Field, fmt.Sprintf("%s has an invalid type", typeErr.Field))
		}
		return nil, errInvalidBody
	}
	if err := binding.Validator.ValidateStruct(target); err != nil {
		return nil, translateValidation(err)
	}
	return keys, nil
}

func translateValidation(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	verr := &recipes.ValidationError{}
	for _, fieldErr := range fieldErrors {
		verr.Add(fieldErr.Field(), validationMessage(fieldErr))
	}
	return verr
}

func validationMessage(fieldErr validator.FieldError) string {
	field := fieldErr.Field()
	switch fieldErr.Tag() {
	case "required":
		return field + " is a required field"
	case "max":
		return fmt.Sprintf("Ensure %s has no more than %s characters", field, fieldErr.Param())
	case "min":
		return fmt.Sprintf("Ensure %s has at least %s characters", field, fieldErr.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fieldErr.Param())
	case "tagkind":
		return "Invalid Tag Kind"
	case "meal":
		return "Invalid Meal"
	case "isodate":
		return field + " must be a date in YYYY-MM-DD format"
	default:
		return field + " is invalid"
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ingredientRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	RecipeID *int64 `json:"recipe_id" binding:"omitempty,gt=0"`
}

type tagRequest struct {
	Value string  `json:"value" binding:"required,max=255"`
	Kind  *string `json:"kind" binding:"omitempty,tagkind"`
}

type recipeTagRequest struct {
	TagID int64 `json:"tag_id" binding:"required,gt=0"`
}

type mealPlanRequest struct {
	RecipeID    int64   `json:"recipe_id" binding:"required,gt=0"`
	PlannedDate string  `json:"planned_date" binding:"required,isodate"`
	Meal        *string `json:"meal" binding:"omitempty,meal"`
	Cooked      bool    `json:"cooked"`
}

type mealPlanPatchRequest struct {
	RecipeID    *int64  `json:"recipe_id" binding:"omitempty,gt=0"`
	PlannedDate *string `json:"planned_date" binding:"omitempty,isodate"`
	Meal        *string `json:"meal" binding:"omitempty,meal"`
	Cooked      *bool   `json:"cooked"`
}
