package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

const maxServiceLength = 64

var (
	referralCodeRegex = regexp.MustCompile(`^[0-9]{6}$`)
	nameRegex         = regexp.MustCompile(`^[\p{L}0-9][\p{L}0-9 .'-]*$`)
)

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func nameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return nameRegex.MatchString(strings.TrimSpace(val))
}

func paymentMethodValidator(fl validator.FieldLevel) bool {
	switch model.PaymentMethod(fl.Field().String()) {
	case model.PaymentMethodCard, model.PaymentMethodPaypal, model.PaymentMethodApplePay:
		return true
	}
	return false
}

func periodValidator(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case "AM", "PM":
		return true
	}
	return false
}

func roleValidator(fl validator.FieldLevel) bool {
	switch model.Role(fl.Field().String()) {
	case model.RoleAdmin, model.RoleShoveller, model.RoleHouseOwner:
		return true
	}
	return false
}

func userStatusValidator(fl validator.FieldLevel) bool {
	return model.UserStatus(fl.Field().String()).Valid()
}

func referralCodeValidator(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return referralCodeRegex.MatchString(val)
}

// servicesValidator accepts an empty list; required-ness is a separate tag.
func servicesValidator(fl validator.FieldLevel) bool {
	services, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		if strings.TrimSpace(s) == "" || len(s) > maxServiceLength {
			return false
		}
		if _, dup := seen[s]; dup {
			return false
		}
		seen[s] = struct{}{}
	}
	return true
}
