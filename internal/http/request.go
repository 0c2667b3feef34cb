package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/orgdesk/internal/application"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// requestError is a malformed request detected before any service call.
type requestError struct {
	message string
	fields  map[string]string
}

func (e *requestError) Error() string { return e.message }

// decodeJSON reads a bounded JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &requestError{message: "Request body is required."}
		}
		return &requestError{message: errBadRequestBody.Error(), fields: map[string]string{"body": err.Error()}}
	}
	if v := reflect.Indirect(reflect.ValueOf(dst)); v.Kind() != reflect.Struct {
		return nil
	}
	return validateStruct(dst)
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &requestError{message: errBadRequestBody.Error()}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describeTag(fe)
	}
	return &requestError{message: "Validation failed.", fields: fields}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must match the layout " + fe.Param()
	}
	return fe.Tag()
}

// writeRequestError renders a decode, query or service error.
func (r responder) writeRequestError(w http.ResponseWriter, req *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		r.writeValidation(req.Context(), w, reqErr.message, reqErr.fields)
		return
	}
	r.handleServiceError(req.Context(), w, err)
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := application.ParseDate(raw)
	if err != nil {
		return nil, &requestError{
			message: "Invalid query parameter.",
			fields:  map[string]string{name: "must be a date in YYYY-MM-DD format"},
		}
	}
	return &t, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &requestError{
			message: "Invalid query parameter.",
			fields:  map[string]string{name: "must be a non-negative integer"},
		}
	}
	return n, nil
}

// queryBool reports whether a query parameter is set to a true value.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return err == nil && v
}

// optionalDate parses a YYYY-MM-DD body field that may be empty.
func optionalDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := application.ParseDate(value)
	if err != nil {
		return nil, &requestError{message: "Validation failed.", fields: map[string]string{field: "must be a date in YYYY-MM-DD format"}}
	}
	return &t, nil
}

// optionalTime parses an RFC 3339 body field that may be empty.
func optionalTime(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, &requestError{message: "Validation failed.", fields: map[string]string{field: fmt.Sprintf("must be an RFC 3339 timestamp: %v", err)}}
	}
	return &t, nil
}
