package pages

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/yoockh/launchkit/internal/models"
)

var SupportedLanguages = models.SupportedLanguages

var formValidate *validator.Validate

func init() {
	formValidate = validator.New(validator.WithRequiredStructEnabled())
	formValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = formValidate.RegisterValidation("language", func(fl validator.FieldLevel) bool {
		return models.IsSupportedLanguage(fl.Field().String())
	})
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupForm struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

type ForgotPasswordForm struct {
	Email string `json:"email" validate:"required,email"`
}

type ProfileForm struct {
	Name     string `json:"name" validate:"max=100"`
	Language string `json:"language" validate:"required,language"`
}

// FormError maps a field name to a human-readable problem.
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Validate checks a form struct and returns *FormError on failure.
func Validate(form any) error {
	err := formValidate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := &FormError{Fields: map[string]string{}}
	for _, v := range verrs {
		fe.Fields[v.Field()] = fieldMessage(v)
	}
	return fe
}

func fieldMessage(v validator.FieldError) string {
	switch v.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", v.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", v.Param())
	case "eqfield":
		return "does not match"
	case "language":
		return "must be one of " + strings.Join(SupportedLanguages, ", ")
	default:
		return "is invalid"
	}
}
