package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAccountNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "123-456-7890", want: "1234567890"},
		{raw: " 1234 5678 90 ", want: "1234567890"},
		{raw: "12\t34-\n56", want: "123456"},
		{raw: "--  --", want: ""},
		{raw: "AB-12", want: "AB12"},
		{raw: "12.34", want: "12.34"},
	}
	for _, tt := range tests {
		got := NormalizeAccountNumber(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
		assert.Equal(t, got, NormalizeAccountNumber(got), "normalize must be idempotent for %q", tt.raw)
	}
}

func TestMaskAccountNumber(t *testing.T) {
	assert.Equal(t, "******7890", MaskAccountNumber("123-456-7890"))
	assert.Equal(t, "789", MaskAccountNumber("789"))
}

func TestValidatePIN(t *testing.T) {
	assert.NoError(t, ValidatePIN("0123"))
	for _, pin := range []string{"", "123", "12345", "12a4", "١٢٣٤"} {
		var vErr *ValidationError
		assert.ErrorAs(t, ValidatePIN(pin), &vErr, "pin=%q", pin)
	}
}

func TestValidateSecret_PasswordModeOnlyRequiresNonEmpty(t *testing.T) {
	assert.NoError(t, ValidateSecret(AuthModePassword, "x"))
	assert.Error(t, ValidateSecret(AuthModePassword, ""))
	assert.Error(t, ValidateSecret(AuthModePIN, "x"))
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 100.25 ")
	assert.NoError(t, err)
	assert.Equal(t, "100.25", amount.String())

	for _, raw := range []string{"", "0", "-1", "abc", "NaN", "Inf"} {
		_, err := ParseAmount(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestParseTransferAuthMode(t *testing.T) {
	assert.Equal(t, AuthModePassword, ParseTransferAuthMode(" Password "))
	assert.Equal(t, AuthModePIN, ParseTransferAuthMode("pin"))
	assert.Equal(t, AuthModePIN, ParseTransferAuthMode("bogus"))
}

func TestParseCardOption(t *testing.T) {
	opt, err := ParseCardOption("online")
	assert.NoError(t, err)
	assert.Equal(t, CardOptionOnline, opt)

	_, err = ParseCardOption("atm")
	assert.Error(t, err)
}
