// Package validator wraps go-playground/validator with the rules shared by
// every request DTO.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Programs accepted by the "program" tag. Matching is case-insensitive.
var Programs = []string{"PMP", "CAPM", "PMI-CP", "PMI-ACP"}

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("program", func(fl validator.FieldLevel) bool {
		return IsProgram(fl.Field().String())
	})
	return &Validator{v: v}
}

func IsProgram(s string) bool {
	for _, p := range Programs {
		if strings.EqualFold(s, p) {
			return true
		}
	}
	return false
}

func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Details flattens a validation error into field -> failed rule, keyed by
// the request field name. Other errors yield nil.
func Details(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
