package validator

import (
	"strings"
	"testing"
)

type testPayload struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Username: "kid1",
		Email:    "a@b.com",
		Password: "correct-horse",
	}

	if err := ValidateStruct(payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Username: "No Spaces!",
		Email:    "invalid",
		Password: "short",
	}

	err := ValidateStruct(payload)
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(vErrs) != 3 {
		t.Fatalf("expected 3 validation errors, got %d", len(vErrs))
	}

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	if fields["username"] != "username" {
		t.Fatalf("expected username rule failure, got %v", fields)
	}
	if fields["email"] != "email" {
		t.Fatalf("expected email rule failure, got %v", fields)
	}
	if fields["password"] != "min" {
		t.Fatalf("expected min rule failure, got %v", fields)
	}
}

func TestIsUsername(t *testing.T) {
	cases := map[string]bool{
		"kid1":        true,
		"a.b-c_d":     true,
		"ab":          false,
		"Upper":       false,
		"_leading":    false,
		"with space":  false,
		"abcdefghijklmnopqrstuvwxyz0123456": false,
	}
	for input, want := range cases {
		if got := IsUsername(input); got != want {
			t.Fatalf("IsUsername(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("parent@example.com", "required,email"); err != nil {
		t.Fatalf("expected valid email, got %v", err)
	}
	if err := ValidateVar("nope", "required,email"); err == nil {
		t.Fatal("expected invalid email to fail")
	}
}

func TestValidateVarMaxBytes(t *testing.T) {
	tag := "maxbytes=72"
	if err := ValidateVar(strings.Repeat("p", MaxPasswordBytes), tag); err != nil {
		t.Fatalf("expected 72 bytes to pass, got %v", err)
	}
	if err := ValidateVar(strings.Repeat("p", 73), tag); err == nil {
		t.Fatal("expected 73 bytes to fail")
	}
	if err := ValidateVar(strings.Repeat("é", 40), tag); err == nil {
		t.Fatal("expected 40 two-byte runes to fail")
	}
}
