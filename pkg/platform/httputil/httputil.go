// Package httputil holds the JSON response and request helpers shared by handlers.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	dErrors "chapel/pkg/domain-errors"
)

// maxBodyBytes bounds JSON request bodies; uploads set their own larger limit.
const maxBodyBytes = 1 << 20

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorCode writes an error body with an explicit status and code.
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// WriteError maps a coded error to its HTTP response. Uncoded and internal
// errors are reported with a generic message so details never leak.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.From(err)
	if !ok {
		WriteErrorCode(w, http.StatusInternalServerError, string(dErrors.CodeInternal), "Internal server error")
		return
	}
	status := de.Code.HTTPStatus()
	message := de.Message
	if status >= http.StatusInternalServerError && de.Code != dErrors.CodeUnavailable {
		message = "Internal server error"
	}
	WriteErrorCode(w, status, string(de.Code), message)
}

// Validatable is implemented by request DTOs that normalise and check themselves.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes a JSON body into T and runs its Validate method.
// On failure it writes the error response and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	return DecodeAndPrepareLimit[T, PT](w, r, logger, ctx, requestID, maxBodyBytes)
}

// DecodeAndPrepareLimit is DecodeAndPrepare with a caller-chosen body limit.
func DecodeAndPrepareLimit[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string, limit int64) (*T, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, dErrors.New(dErrors.CodeValidation, "request body too large"))
			return nil, false
		}
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is required"))
		return nil, false
	}
	req := new(T)
	if err := json.Unmarshal(raw, req); err != nil {
		logger.WarnContext(ctx, "invalid request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	if err := PT(req).Validate(); err != nil {
		logger.InfoContext(ctx, "request validation failed",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, err)
		return nil, false
	}
	return req, true
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs `validate` struct tags and reports the first failure
// as a validation error named after the JSON field.
func ValidateStruct(v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeInternal, "validation failed")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return dErrors.New(dErrors.CodeValidation, fe.Field()+" is required")
	case "email":
		return dErrors.New(dErrors.CodeValidation, fe.Field()+" must be a valid email address")
	case "max":
		return dErrors.New(dErrors.CodeValidation, fe.Field()+" must be at most "+fe.Param()+" characters")
	case "oneof":
		return dErrors.New(dErrors.CodeValidation, fe.Field()+" must be one of: "+strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return dErrors.New(dErrors.CodeValidation, fe.Field()+" is invalid")
	}
}
