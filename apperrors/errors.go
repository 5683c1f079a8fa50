package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an Error for logging and response handling.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindUpstream   Kind = "upstream"
	KindStorage    Kind = "storage"
	KindConfig     Kind = "config"
	KindInternal   Kind = "internal"
)

// Error represents an application error
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Detail  string
	Fields  gin.H
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Body returns the JSON envelope written to the client.
func (e *Error) Body() gin.H {
	body := gin.H{"error": e.Message}
	if e.Detail != "" {
		body["message"] = e.Detail
	}
	for k, v := range e.Fields {
		body[k] = v
	}
	return body
}

// WithDetail returns a copy of e carrying a client-facing detail message.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithField returns a copy of e with an extra JSON field.
func (e *Error) WithField(key string, value any) *Error {
	cp := *e
	cp.Fields = gin.H{}
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

// New creates a new Error
func New(kind Kind, code int, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func Validation(message string) *Error {
	return New(KindValidation, http.StatusBadRequest, message, nil)
}

func Auth(code int, message string, err error) *Error {
	return New(KindAuth, code, message, err)
}

func Upstream(message string, err error) *Error {
	return New(KindUpstream, http.StatusInternalServerError, message, err)
}

func Storage(message string, err error) *Error {
	return New(KindStorage, http.StatusInternalServerError, message, err)
}

func Config(message, detail string) *Error {
	return New(KindConfig, http.StatusInternalServerError, message, nil).WithDetail(detail)
}

// Common error types
var (
	ErrNotFound         = New(KindValidation, http.StatusNotFound, "Not found", nil)
	ErrMethodNotAllowed = New(KindValidation, http.StatusMethodNotAllowed, "Method not allowed", nil)
	ErrUnauthorized     = New(KindAuth, http.StatusUnauthorized, "Unauthorized", nil)
	ErrInternalServer   = New(KindInternal, http.StatusInternalServerError, "Internal server error", nil)
)

// As extracts an *Error from err, wrapping anything else as an internal error.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(KindInternal, http.StatusInternalServerError, ErrInternalServer.Message, err)
}

// ErrorMiddleware renders the last error attached to the context.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := As(c.Errors.Last().Err)
		c.AbortWithStatusJSON(appErr.Code, appErr.Body())
	}
}
