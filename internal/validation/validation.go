package validation

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"satsync/internal/codec"
	"satsync/internal/errors"
)

// mobileIDPattern matches terminal serials such as 01174907SKYFDA4
var mobileIDPattern = regexp.MustCompile(`^\d{8}[A-Z]{3}[0-9A-F]{4}$`)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonName)

	_ = validate.RegisterValidation("mobileid", func(fl validator.FieldLevel) bool {
		return mobileIDPattern.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("command", func(fl validator.FieldLevel) bool {
		_, ok := codec.LookupCommand(fl.Field().String())
		return ok
	})
}

// jsonName reports fields by their json key so messages match request bodies
func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// Struct validates v against its `validate` tags. The first failing field is
// reported as a validation AppError.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, errors.ErrCodeValidationFailed, "validation failed")
	}
	fe := verrs[0]
	return errors.NewValidationError(fe.Namespace(), fmt.Sprint(fe.Value()), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "mobileid":
		return "is not a valid mobile id"
	case "command":
		return fmt.Sprintf("must be one of %s", strings.Join(codec.Commands(), ", "))
	case "url":
		return "must be a URL"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "excluded_with":
		return fmt.Sprintf("cannot be combined with %s", fe.Param())
	case "required_without":
		return fmt.Sprintf("is required when %s is absent", fe.Param())
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

// ValidateMobileID checks the terminal serial format
func ValidateMobileID(mobileID string) error {
	if mobileID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "mobile ID cannot be empty")
	}
	if !mobileIDPattern.MatchString(mobileID) {
		return errors.NewValidationError("mobile_id", mobileID, "is not a valid mobile id")
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid content length")
	}

	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}
