package simulation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrorKind classifies a failed simulation for logs and metrics.
type ErrorKind string

const (
	KindDecode     ErrorKind = "decode"
	KindValidation ErrorKind = "validation"
	KindBuild      ErrorKind = "build"
	KindRender     ErrorKind = "render"
	KindEncode     ErrorKind = "encode"
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
)

// Error is a failure in one stage of the simulation pipeline.
type Error struct {
	Kind ErrorKind
	// Plot is set for render and encode failures.
	Plot string
	Err  error
}

func (e *Error) Error() string {
	if e.Plot != "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Plot, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FieldError is a single schema violation.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

// ValidationError reports request schema violations. It is kept apart from
// build and render failures so callers can tell bad input from bad optics.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// KindOf returns the error kind for err, defaulting to render.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRender
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// report fields by their JSON names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the request schema before any lens is built.
func Validate(req *SimulateRequest) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &ValidationError{Fields: make([]FieldError, len(fieldErrs))}
	for i, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		out.Fields[i] = FieldError{
			Field:   field,
			Tag:     fe.Tag(),
			Message: translate(field, fe),
		}
	}
	return out
}

// fieldPath drops the leading struct name: "SimulateRequest.surfaces[0].radius"
// becomes "surfaces[0].radius".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func translate(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must not be empty", field)
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
