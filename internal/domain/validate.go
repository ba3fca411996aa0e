package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a ServiceConfig at the registration boundary and returns
// a caller-readable error for the first violated rule.
func Validate(c ServiceConfig) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "URL" && fe.Tag() == "required_if":
		return errors.New("url is required for http services")
	case fe.Field() == "Host" && fe.Tag() == "required_if":
		return errors.New("host is required for icmp services")
	case fe.Field() == "Type":
		return fmt.Errorf("type must be %q or %q", TypeHTTP, TypeICMP)
	case fe.Tag() == "gt":
		return fmt.Errorf("%s must be greater than zero", jsonField(fe.Field()))
	case fe.Tag() == "url":
		return errors.New("url is not a valid URL")
	default:
		return fmt.Errorf("%s is required", jsonField(fe.Field()))
	}
}

func jsonField(name string) string {
	switch name {
	case "ID":
		return "id"
	case "Name":
		return "name"
	case "URL":
		return "url"
	case "Host":
		return "host"
	case "Interval":
		return "interval"
	case "Timeout":
		return "timeout"
	default:
		return name
	}
}
