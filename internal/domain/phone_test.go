package domain

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "+7 (999) 123-45-67", want: "79991234567"},
		{input: "  79991234567 ", want: "79991234567"},
		{input: "phone", want: ""},
		{input: "", want: ""},
		{input: "8-999-123-45-67", want: "89991234567"},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.input); got != tt.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestClassifyPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  PhoneClass
	}{
		{name: "valid", input: "79991234567", want: PhoneValid},
		{name: "leading eight", input: "89991234567", want: PhoneInvalid},
		{name: "ten digits", input: "7999123456", want: PhoneInvalid},
		{name: "twelve digits", input: "799912345678", want: PhoneInvalid},
		{name: "empty", input: "", want: PhoneEmpty},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ClassifyPhone(tt.input); got != tt.want {
				t.Fatalf("ClassifyPhone(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if got := IsValidPhone(tt.input); got != (tt.want == PhoneValid) {
				t.Fatalf("IsValidPhone(%q) = %v", tt.input, got)
			}
		})
	}
}

func TestIsValidPhoneRejectsNonDigits(t *testing.T) {
	t.Parallel()

	if IsValidPhone("7999123456a") {
		t.Fatal("IsValidPhone() accepted a non-digit character")
	}
}
