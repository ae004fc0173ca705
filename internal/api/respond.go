package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"canteen/internal/ordering"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var validationOnce sync.Once

// registerValidation makes validator report fields by their JSON names
func registerValidation() {
	validationOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func errorMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": msg}})
}

// invalid writes a 400 with form-level and per-field messages
func invalid(c *gin.Context, formErrors []string, fieldErrors map[string][]string) {
	if formErrors == nil {
		formErrors = []string{}
	}
	if fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{
		"formErrors":  formErrors,
		"fieldErrors": fieldErrors,
	}})
}

// bindJSON decodes the body into req and writes the error response on failure
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		errorMessage(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := map[string][]string{}
		for _, fe := range verrs {
			key := fieldPath(fe)
			fields[key] = append(fields[key], describe(fe))
		}
		invalid(c, nil, fields)
		return false
	}

	invalid(c, []string{err.Error()}, nil)
	return false
}

// fieldPath drops the request struct name from the validator namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "Must contain at least " + fe.Param() + " element(s)"
		}
		if fe.Kind() == reflect.String {
			return "Must contain at least " + fe.Param() + " character(s)"
		}
		return "Must be greater than or equal to " + fe.Param()
	case "max":
		return "Must be less than or equal to " + fe.Param()
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "uuid":
		return "Invalid uuid"
	case "url":
		return "Invalid url"
	}
	return "Invalid value"
}

// fail maps a service error onto a status code
func (k *CanteenAPI) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ordering.ErrValidation):
		invalid(c, []string{err.Error()}, nil)
	case errors.Is(err, ordering.ErrItemNotFound), errors.Is(err, ordering.ErrOrderNotFound):
		errorMessage(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ordering.ErrInsufficientStock), errors.Is(err, ordering.ErrInvalidState):
		errorMessage(c, http.StatusConflict, err.Error())
	default:
		k.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		errorMessage(c, http.StatusInternalServerError, "Internal server error")
	}
}
