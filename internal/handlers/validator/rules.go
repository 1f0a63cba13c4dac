package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewJobValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("payment_method", paymentMethodValidator),
		},
		{
			Rule: registerFn("period", periodValidator),
		},
		{
			Rule: registerFn("services", servicesValidator),
		},
	}
}

func NewUserValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("role", roleValidator),
		},
		{
			Rule: registerFn("referral_code", referralCodeValidator),
		},
		{
			Rule: registerFn("services", servicesValidator),
		},
		{
			Rule: registerFn("person_name", nameValidator),
		},
		{
			Rule: registerFn("user_status", userStatusValidator),
		},
	}
}
