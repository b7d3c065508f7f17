package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vishalm/serp-forge/internal/serp"
)

var messages = map[string]string{
	"query.required":         "query cannot be empty",
	"max_results.gt":         "max_results must be greater than 0",
	"max_results.lte":        "max_results cannot exceed 100",
	"search_type.searchtype": "search_type must be one of web, news, images, videos",
	"queries.min":            "query list cannot be empty",
}

// Validator checks request structs and reports the first problem as a *serp.ValidationError.
type Validator struct {
	v *validator.Validate
}

// NewValidator registers the json field names and the searchtype tag.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("searchtype", func(fl validator.FieldLevel) bool {
		return serp.SearchType(fl.Field().String()).Valid()
	})
	return &Validator{v: v}
}

// Check validates s. A nil return means s is acceptable.
func (v *Validator) Check(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return serp.NewValidationError("", err.Error())
	}
	fe := fieldErrs[0]
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return serp.NewValidationError(fe.Field(), msg)
	}
	return serp.NewValidationError(fe.Field(), fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
}
