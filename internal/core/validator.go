package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"treasury/internal/types"
)

// Validator wraps go-playground/validator with the domain tags used by the
// query structs of the control surface.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator and registers the custom tags:
//
//	topic    - a known cache topic
//	address  - a non-empty account address without whitespace
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("topic", func(fl validator.FieldLevel) bool {
		return types.Topic(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && !strings.ContainsAny(s, " \t\r\n")
	})
	return &Validator{v: v}
}

// ValidateStruct validates s and converts the first failure into a 400
// AppError whose code depends on the failing field's tag.
func (val *Validator) ValidateStruct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeValidationMissingField, "invalid request", err)
	}

	fe := verrs[0]
	details := map[string]any{"field": fe.Field(), "rule": fe.Tag()}
	if fe.Param() != "" {
		details["param"] = fe.Param()
	}

	code := types.ErrCodeValidationMissingField
	switch fe.Tag() {
	case "topic":
		code = types.ErrCodeValidationInvalidTopic
	case "address":
		code = types.ErrCodeValidationInvalidAddress
	case "min", "max", "gte", "lte":
		code = types.ErrCodeValidationInvalidLimit
	}
	return types.NewAppErrorWithDetails(code, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()), err, details)
}
