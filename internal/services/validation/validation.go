// Package validation checks request fields by kind and reports failures as
// structured codes the mobile clients switch on.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type Code string

const (
	CodeRequiredField         Code = "REQUIRED_FIELD"
	CodeInvalidValue          Code = "INVALID_VALUE"
	CodeMinLength             Code = "MIN_LENGTH"
	CodeMaxLength             Code = "MAX_LENGTH"
	CodeMinValue              Code = "MIN_VALUE"
	CodeMaxValue              Code = "MAX_VALUE"
	CodeWrongVerificationCode Code = "WRONG_VERIFICATION_CODE"
)

// decimalMaxStringLength bounds the raw input before parsing.
const decimalMaxStringLength = 1000

type FieldError struct {
	Field  string `json:"field"`
	Domain string `json:"domain"`
	Code   Code   `json:"code"`
	Desc   string `json:"desc"`
}

type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fieldErr := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", fieldErr.Code, fieldErr.Desc))
	}

	return strings.Join(parts, "; ")
}

func (e Errors) Has(field string, code Code) bool {
	for _, fieldErr := range e {
		if fieldErr.Field == field && fieldErr.Code == code {
			return true
		}
	}

	return false
}

// Kind is one of Char, Email, Decimal or Float.
type Kind interface {
	kind()
}

type Char struct {
	AllowBlank bool
	MinLength  int
	MaxLength  int
}

type Email struct {
	Char
}

type Decimal struct {
	MaxDigits     int
	DecimalPlaces int
}

type Float struct {
	Min *float64
	Max *float64
}

func (Char) kind()    {}
func (Email) kind()   {}
func (Decimal) kind() {}
func (Float) kind()   {}

var emailValidate = validator.New()

type Validator struct {
	domain string
	errs   Errors
}

func New(domain string) *Validator {
	return &Validator{domain: domain}
}

// Check validates value against kind and records every failure under field.
func (v *Validator) Check(field string, kind Kind, value string) *Validator {
	switch k := kind.(type) {
	case Char:
		v.checkChar(field, k, value)
	case Email:
		v.checkEmail(field, k, value)
	case Decimal:
		v.checkDecimal(field, k, value)
	case Float:
		v.checkFloat(field, k, value)
	default:
		panic(fmt.Sprintf("validation: unknown field kind %T", kind))
	}

	return v
}

func (v *Validator) Add(field string, code Code, desc string) *Validator {
	v.errs = append(v.errs, FieldError{
		Field:  field,
		Domain: v.domain + ".error",
		Code:   code,
		Desc:   desc,
	})

	return v
}

func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}

	return v.errs
}

func (v *Validator) checkChar(field string, k Char, value string) bool {
	if strings.TrimSpace(value) == "" {
		if !k.AllowBlank {
			v.Add(field, CodeRequiredField, fmt.Sprintf("%s is a required field", field))
			return false
		}

		return true
	}

	length := len([]rune(value))

	if k.MaxLength > 0 && length > k.MaxLength {
		v.Add(field, CodeMaxLength, fmt.Sprintf("%s length exceeds max length value (%d)", field, k.MaxLength))
	}

	if k.MinLength > 0 && length < k.MinLength {
		v.Add(field, CodeMinLength, fmt.Sprintf("%s length is less than min length value (%d)", field, k.MinLength))
	}

	return true
}

func (v *Validator) checkEmail(field string, k Email, value string) {
	if !v.checkChar(field, k.Char, value) || strings.TrimSpace(value) == "" {
		return
	}

	if err := emailValidate.Var(value, "email"); err != nil {
		v.Add(field, CodeInvalidValue, fmt.Sprintf("%s is invalid", field))
	}
}

func (v *Validator) checkDecimal(field string, k Decimal, value string) {
	value = strings.TrimSpace(value)

	if len(value) > decimalMaxStringLength {
		v.Add(field, CodeMaxLength, fmt.Sprintf("%s length exceeds max length value (%d)", field, decimalMaxStringLength))
		return
	}

	number, err := decimal.NewFromString(value)
	if err != nil {
		v.Add(field, CodeInvalidValue, fmt.Sprintf("%s is invalid", field))
		return
	}

	totalDigits, wholeDigits, decimalPlaces := digits(number)

	if k.MaxDigits > 0 && totalDigits > k.MaxDigits {
		v.Add(field, CodeInvalidValue, fmt.Sprintf("%s exceeds max digits (%d) value", field, k.MaxDigits))
		return
	}

	if k.DecimalPlaces > 0 && decimalPlaces > k.DecimalPlaces {
		v.Add(field, CodeInvalidValue, fmt.Sprintf("%s exceeds max decimal places (%d) value", field, k.DecimalPlaces))
		return
	}

	if k.MaxDigits > 0 && k.DecimalPlaces > 0 && wholeDigits > k.MaxDigits-k.DecimalPlaces {
		v.Add(field, CodeInvalidValue, fmt.Sprintf("%s exceeds max whole digits (%d) value", field, k.MaxDigits-k.DecimalPlaces))
	}
}

func (v *Validator) checkFloat(field string, k Float, value string) {
	number, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		v.Add(field, CodeInvalidValue, fmt.Sprintf("%s is invalid", field))
		return
	}

	if k.Min != nil && number < *k.Min {
		v.Add(field, CodeMinValue, fmt.Sprintf("%s value is less than min value (%v)", field, *k.Min))
		return
	}

	if k.Max != nil && number > *k.Max {
		v.Add(field, CodeMaxValue, fmt.Sprintf("%s value exceeds max value (%v)", field, *k.Max))
	}
}

// digits splits a decimal into total, whole and fractional digit counts the
// same way for 1234500, 123.45 and 0.001234.
func digits(number decimal.Decimal) (int, int, int) {
	coefficient := number.Coefficient().String()
	coefficient = strings.TrimPrefix(coefficient, "-")

	length := len(coefficient)
	exponent := int(number.Exponent())

	switch {
	case exponent >= 0:
		return length + exponent, length + exponent, 0
	case length > -exponent:
		return length, length + exponent, -exponent
	default:
		return -exponent, 0, -exponent
	}
}
