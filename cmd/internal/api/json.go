package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var errEmptyBody = errors.New("empty body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, errs ...apiErrorMessage) {
	writeJSON(w, status, apiResponse{Success: false, Message: msg, Code: code, Errors: errs})
}

// decodeRequest reads a JSON or urlencoded form body into dst.
func decodeRequest(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		fr, ok := dst.(formRequest)
		if !ok {
			return errors.New("form body not supported")
		}
		if err := r.ParseForm(); err != nil {
			return err
		}
		fr.fromForm(r.PostForm)
		return nil
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	// Ensure there is no extra data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so field errors match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldErrors converts validator errors into response entries.
func fieldErrors(err error) []apiErrorMessage {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apiErrorMessage{{Message: "invalid request", Code: codeInvalidField}}
	}
	out := make([]apiErrorMessage, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apiErrorMessage{
			Message: fieldMessage(fe),
			Code:    codeInvalidField,
			Field:   fe.Field(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid mail address"
	case "max":
		return "is too long"
	case "excludesall":
		return "contains forbidden characters"
	default:
		return "is invalid"
	}
}
