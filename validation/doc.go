// Package validation validates configuration structs with
// go-playground/validator and collects programmatic field checks. Both
// report failures as an errors.AppError with code INVALID_INPUT and a
// "fields" detail.
//
//	type Config struct {
//	    Redirect string `json:"redirect" validate:"omitempty,oneof=follow manual"`
//	}
//	err := validation.Validate(cfg)
//
//	err := validation.New().Range("n", n, 1, 1000).Validate()
package validation
