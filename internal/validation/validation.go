// Package validation binds request data and validates it with
// go-playground/validator, turning failures into field-level
// errs.HTTPError responses.
package validation
