package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCalculateDiscountAmount(t *testing.T) {
	sub := decimal.NewFromInt(200000)
	cases := []struct {
		discount     int64
		discountType string
		want         int64
	}{
		{10, DiscountTypePercent, 20000},
		{15000, DiscountTypeAmount, 15000},
		{300000, DiscountTypeAmount, 200000},
		{150, DiscountTypePercent, 200000},
		{0, DiscountTypeAmount, 0},
		{-5, DiscountTypePercent, 0},
	}
	for _, c := range cases {
		got := CalculateDiscountAmount(sub, decimal.NewFromInt(c.discount), c.discountType)
		if !got.Equal(decimal.NewFromInt(c.want)) {
			t.Fatalf("discount %d%s = %s, want %d", c.discount, c.discountType, got, c.want)
		}
	}
}

type sample struct {
	Method string `validate:"required,oneof=cash card"`
	Note   string `validate:"max=3"`
}

func TestValidateStruct(t *testing.T) {
	if err := ValidateStruct(sample{Method: "cash"}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	err := ValidateStruct(sample{Method: "gold", Note: "toolong"})
	if err == nil {
		t.Fatalf("invalid input accepted")
	}
	msg := err.Error()
	if !strings.Contains(msg, "sample.Method:oneof") || !strings.Contains(msg, "sample.Note:max") {
		t.Fatalf("message = %q", msg)
	}
	if strings.Index(msg, "Method") > strings.Index(msg, "Note") {
		t.Fatalf("fields not sorted: %q", msg)
	}
}

func TestJwtRoundTrip(t *testing.T) {
	t.Setenv("API_SECRET", "s3cret")
	token, err := JwtGenerate("biz-1", 3, "Mya")
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("JwtValidate: %v", err)
	}
	claims := parsed.Claims.(*JwtCustomClaim)
	if claims.BusinessId != "biz-1" || claims.UserId != 3 || claims.Name != "Mya" {
		t.Fatalf("claims = %+v", claims)
	}

	t.Setenv("API_SECRET", "rotated")
	if _, err := JwtValidate(token); err == nil {
		t.Fatalf("token accepted after secret rotation")
	}
}
