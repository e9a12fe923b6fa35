package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"librarylending/internal/apperr"
	"librarylending/internal/models"
)

var errNotFound = apperr.NotFound("Not found.")

var validatorOnce sync.Once

// registerValidators makes binding errors report json field names and adds
// the "cover" rule.
func registerValidators() {
	validatorOnce.Do(func() {
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
		_ = v.RegisterValidation("cover", func(fl validator.FieldLevel) bool {
			return models.CoverType(fl.Field().String()).Valid()
		})
	})
}

// writeError renders err according to its apperr kind. Anything else is a 500.
func (h *LibraryHandler) writeError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		_ = c.Error(err)
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
		return
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, appErr.Fields)
	case apperr.KindConflict:
		c.JSON(http.StatusBadRequest, gin.H{"detail": appErr.Message})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"detail": appErr.Message})
	case apperr.KindPermission:
		c.JSON(http.StatusForbidden, gin.H{"detail": appErr.Message})
	case apperr.KindPaymentProvider:
		_ = c.Error(err)
		h.log.Warn("payment provider failure", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"detail": appErr.Message})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
	}
}

// bindError turns a ShouldBindJSON failure into a field-keyed validation error.
func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return apperr.ValidationFields(fields)
	}
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) && ute.Field != "" {
		return apperr.Validation(ute.Field, "Incorrect type.")
	}
	return apperr.Validation("non_field_errors", "Malformed request body.")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "uuid":
		return "Must be a valid UUID."
	case "datetime":
		return "Date has wrong format. Use YYYY-MM-DD."
	case "cover":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	}
	return "Invalid value."
}

// pathID parses the :id segment. A malformed id can never match a row.
func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errNotFound
	}
	return id, nil
}
