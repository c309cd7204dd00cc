package handlers

import (
	"github.com/go-playground/validator/v10"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
)

// Validators returns the custom binding tags used by the request structs.
func Validators() map[string]validator.Func {
	return map[string]validator.Func{
		"rule": func(fl validator.FieldLevel) bool {
			_, err := application.ParseRuleID(fl.Field().String())
			return err == nil
		},
		"status": func(fl validator.FieldLevel) bool {
			return entity.Status(fl.Field().String()).Valid()
		},
	}
}
