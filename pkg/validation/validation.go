package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "signup-api/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	return v
}

// jsonName reports fields by their wire name so callers can log them without
// knowing Go field names.
func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

// Validate checks req against its struct tags. Failures come back as a
// CodeInvalidInput error wrapping the validator result, so Fields can recover
// which fields failed.
func Validate(req any) error {
	err := defaultValidator.Struct(req)
	if err == nil {
		return nil
	}
	fields := Fields(err)
	if len(fields) == 0 {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid request")
	}
	return &dErrors.Error{
		Code:    dErrors.CodeInvalidInput,
		Message: "invalid fields: " + strings.Join(fields, ", "),
		Err:     err,
	}
}

// Fields returns the wire names of every field that failed validation in
// err's chain, in struct order. It returns nil for any other error.
func Fields(err error) []string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field())
	}
	return fields
}
