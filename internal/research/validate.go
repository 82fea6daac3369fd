package research

import (
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return validationError(err, "invalid input")
	}
	return nil
}
