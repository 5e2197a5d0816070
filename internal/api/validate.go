package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/smartpot-core/internal/auth"
)

// newValidator returns a validator that reports JSON field names and knows
// the "username" rule.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	//nolint:errcheck // tag name is static and valid
	v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return auth.IsValidUsername(fl.Field().String())
	})
	return v
}

// decodeJSON reads a JSON body into dst and validates it. On failure it has
// already written the error response and returns false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return s.validateStruct(w, dst)
}

// validateStruct writes a 400 validation_error and returns false when dst
// breaks a rule.
func (s *Server) validateStruct(w http.ResponseWriter, dst any) bool {
	if err := s.validate.Struct(dst); err != nil {
		writeValidationError(w, describeValidation(err))
		return false
	}
	return true
}

// describeValidation renders validator errors as "field: problem; ...".
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+": "+ruleMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "field required"
	case "email":
		return "value is not a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "username":
		return "may contain only letters, digits, '.', '_' and '-'"
	case "eq":
		return "must be " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed rule " + fe.Tag()
	}
}
