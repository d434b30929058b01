package utils

import "testing"

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("changeme123")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "changeme123" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := CheckPassword("changeme123", hash); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if err := CheckPassword("wrongpass", hash); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestIsValidRole(t *testing.T) {
	valid := []string{"admin", "registrar", "accountant", "staff"}
	for _, role := range valid {
		if !IsValidRole(role) {
			t.Errorf("role %q should be valid", role)
		}
	}
	for _, role := range []string{"teacher", "Admin", ""} {
		if IsValidRole(role) {
			t.Errorf("role %q should be invalid", role)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  Asha  "); got != "Asha" {
		t.Errorf("expected trimmed string, got %q", got)
	}
}

func TestIsValidFileExtension(t *testing.T) {
	allowed := []string{"csv", "xlsx"}
	tests := []struct {
		filename string
		want     bool
	}{
		{"fees.csv", true},
		{"fees.XLSX", true},
		{"fees.pdf", false},
		{"noextension", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := IsValidFileExtension(tc.filename, allowed); got != tc.want {
			t.Errorf("IsValidFileExtension(%q) = %v, want %v", tc.filename, got, tc.want)
		}
	}
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(16)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	b, err := GenerateRandomString(16)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if a == b {
		t.Fatal("two random strings should differ")
	}
}
