package apperr

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return v
}

// Validate runs struct tag validation and converts failures into an Invalid error
// whose Fields map is keyed by json field name.
func Validate(publicMsg string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return Wrap(err)
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = messageForTag(fe.Tag(), fe.Param())
	}
	if publicMsg == "" {
		// first failing field decides the headline
		publicMsg = ve[0].Field() + ": " + fields[ve[0].Field()]
	}
	return InvalidErr(publicMsg, fields)
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "campo obrigatório"
	case "email":
		return "informe um e-mail válido"
	case "min":
		return "mínimo " + param
	case "max":
		return "máximo " + param
	case "gte":
		return "deve ser maior ou igual a " + param
	case "gt":
		return "deve ser maior que " + param
	case "datetime":
		return "data inválida (use " + param + ")"
	default:
		return "valor inválido"
	}
}
