package validator

import (
	"testing"

	"github.com/shopspring/decimal"
)

type packageInput struct {
	Name  string          `json:"name" validate:"required,min=2"`
	Price decimal.Decimal `json:"price" validate:"money"`
	Phone string          `json:"phone" validate:"omitempty,phone"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	errs := Validate(&packageInput{Name: "", Price: decimal.RequireFromString("9.99")})
	if _, ok := errs["name"]; !ok {
		t.Fatalf("expected error keyed by json name, got %v", errs)
	}
}

func TestMoneyRejectsNegativeAndFractionalCents(t *testing.T) {
	cases := map[string]bool{
		"9.99":   true,
		"0":      true,
		"-1.00":  false,
		"1.005":  false,
		"120.50": true,
	}
	for raw, valid := range cases {
		errs := Validate(&packageInput{Name: "Pro", Price: decimal.RequireFromString(raw)})
		_, failed := errs["price"]
		if failed == valid {
			t.Fatalf("price %s: expected valid=%v, got errors %v", raw, valid, errs)
		}
	}
}

func TestPhoneFormat(t *testing.T) {
	if errs := Validate(&packageInput{Name: "Pro", Price: decimal.Zero, Phone: "+77011234567"}); errs != nil {
		t.Fatalf("expected valid phone, got %v", errs)
	}
	if errs := Validate(&packageInput{Name: "Pro", Price: decimal.Zero, Phone: "87011234567"}); errs["phone"] == "" {
		t.Fatalf("expected phone error, got %v", errs)
	}
}
