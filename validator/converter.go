// Package validator converts ozzo-validation results into layered errors
package validator

import (
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jknl-dev/platform-kit/errcode"
)

// ErrValidationFailed generic validation failure (module 10 = common)
var ErrValidationFailed = errcode.Register(errcode.New(10, 1010, "common", "error.common.validation_failed", "validation failed"))

// Validatable anything that can validate itself
type Validatable interface {
	Validate() error
}

// ValidateRequest runs Validate and converts ozzo-validation errors
func ValidateRequest(req Validatable) error {
	err := req.Validate()
	if err == nil {
		return nil
	}

	if validationErrs, ok := err.(validation.Errors); ok {
		return ConvertValidationError(validationErrs)
	}

	return err
}

// ConvertValidationError flattens field errors into ErrValidationFailed.
// Nested validation.Errors are flattened with dotted keys.
func ConvertValidationError(validationErrs validation.Errors) error {
	fields := make(map[string]string)
	flatten("", validationErrs, fields)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}

	return ErrValidationFailed.
		WithMsgf("validation failed: %s", strings.Join(parts, "; ")).
		WithData("fields", fields)
}

func flatten(prefix string, errs validation.Errors, out map[string]string) {
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		if nested, ok := fieldErr.(validation.Errors); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = fieldErr.Error()
	}
}
