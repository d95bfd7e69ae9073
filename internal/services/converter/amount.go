package converter

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMpesaAmount renders an amount the way the gateway expects it: whole
// shillings with the fraction dropped.
func FormatMpesaAmount(amount decimal.Decimal) string {
	return amount.Truncate(0).String()
}

// NormalizePhone strips formatting and the leading plus from a phone number.
func NormalizePhone(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)

	return strings.TrimPrefix(phone, "+")
}

// InternationalPhone returns the phone with a leading plus.
func InternationalPhone(phone string) string {
	return "+" + NormalizePhone(phone)
}
