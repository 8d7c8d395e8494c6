package checkout

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"sleepoutside/internal/validate"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Form is what the shopper typed. JSON names double as field names in
// violations and match the order payload.
type Form struct {
	FirstName  string `json:"fname" form:"fname" validate:"text=50"`
	LastName   string `json:"lname" form:"lname" validate:"text=50"`
	Street     string `json:"street" form:"street" validate:"text=100"`
	City       string `json:"city" form:"city" validate:"text=50"`
	State      string `json:"state" form:"state" validate:"usstate"`
	Zip        string `json:"zip" form:"zip" validate:"zip"`
	CardNumber string `json:"cardNumber" form:"cardNumber" validate:"cardnumber"`
	Expiration string `json:"expiration" form:"expiration" validate:"expiration"`
	Code       string `json:"code" form:"code" validate:"cvv"`
}

// Redacted drops card data so the form can be echoed back or logged.
func (f Form) Redacted() Form {
	f.CardNumber = ""
	f.Code = ""
	return f
}

var messages = map[string]string{
	"fname":      "First name is required",
	"lname":      "Last name is required",
	"street":     "Address is required",
	"city":       "City is required",
	"state":      "State must be 2 characters",
	"zip":        "ZIP code must be 5 digits or 5+4 format (e.g., 12345 or 12345-6789)",
	"cardNumber": "Card number must be 16 digits",
	"expiration": "Expiration must be MM/YY format and not expired",
	"code":       "CVV must be 3-4 digits",
}

// aliases maps the storefront's input ids onto form field names.
var aliases = map[string]string{
	"address": "street",
	"exp":     "expiration",
	"cvv":     "code",
}

// Validator checks forms against the field rules. Expiry is judged against
// the injected clock.
type Validator struct {
	v    *validatorv10.Validate
	now  func() time.Time
	tags map[string]string // field name -> validate tag
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	val := &Validator{v: validatorv10.New(), now: now, tags: map[string]string{}}

	val.v.RegisterTagNameFunc(jsonName)
	mustRegister(val.v, "text", func(fl validatorv10.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		_, ok := validate.Text(fl.Field().String(), limit)
		return ok
	})
	mustRegister(val.v, "usstate", stringRule(validate.State))
	mustRegister(val.v, "zip", stringRule(validate.ZIP))
	mustRegister(val.v, "cardnumber", stringRule(validate.CardNumber))
	mustRegister(val.v, "cvv", stringRule(validate.CVV))
	mustRegister(val.v, "expiration", func(fl validatorv10.FieldLevel) bool {
		_, ok := validate.Expiration(fl.Field().String(), val.now())
		return ok
	})

	t := reflect.TypeOf(Form{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		val.tags[jsonName(f)] = f.Tag.Get("validate")
	}
	return val
}

// Validate checks every field and returns a *ValidationError listing all
// violations in form order, or nil.
func (val *Validator) Validate(f Form) error {
	err := val.v.Struct(f)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &ValidationError{Violations: make([]Violation, 0, len(ve))}
	for _, fe := range ve {
		out.Violations = append(out.Violations, Violation{Field: fe.Field(), Message: messages[fe.Field()]})
	}
	return out
}

// ValidateField checks one field on its own, for validation as the shopper
// leaves each input. A nil Violation means the field is fine.
func (val *Validator) ValidateField(name, value string) (*Violation, error) {
	if a, ok := aliases[name]; ok {
		name = a
	}
	tag, ok := val.tags[name]
	if !ok {
		return nil, ErrUnknownField
	}
	if err := val.v.Var(value, tag); err != nil {
		var ve validatorv10.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, err
		}
		return &Violation{Field: name, Message: messages[name]}, nil
	}
	return nil, nil
}

// Fields lists the form field names in form order.
func Fields() []string {
	t := reflect.TypeOf(Form{})
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		out = append(out, jsonName(t.Field(i)))
	}
	return out
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func stringRule(rule func(string) (string, bool)) validatorv10.Func {
	return func(fl validatorv10.FieldLevel) bool {
		_, ok := rule(fl.Field().String())
		return ok
	}
}

func mustRegister(v *validatorv10.Validate, tag string, fn validatorv10.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}
