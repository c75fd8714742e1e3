package domain

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// IsValid reports whether the receipt carries every field needed for scoring.
// Items are not inspected individually.
func IsValid(r Receipt) bool {
	return validate.Struct(r) == nil
}
