package room

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	password := "test-password-123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	// Check hash format (bcrypt hashes start with $2a$ or $2b$)
	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Errorf("HashPassword() hash = %q, want bcrypt format", hash)
	}

	// Verify the password matches the hash
	if !VerifyPassword(password, hash) {
		t.Error("VerifyPassword() returned false for correct password")
	}
}

func TestHashPassword_Cost(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	// Cost 10 is embedded in the hash prefix.
	if !strings.HasPrefix(hash, "$2a$10$") && !strings.HasPrefix(hash, "$2b$10$") {
		t.Errorf("HashPassword() hash = %q, want cost 10", hash)
	}
}

func TestHashPassword_DifferentHashes(t *testing.T) {
	password := "same-password"

	hash1, _ := HashPassword(password)
	hash2, _ := HashPassword(password)

	// Bcrypt should generate different hashes each time due to salt
	if hash1 == hash2 {
		t.Error("HashPassword() generated same hash twice, expected different due to salt")
	}

	// Both hashes should verify correctly
	if !VerifyPassword(password, hash1) {
		t.Error("VerifyPassword() failed for hash1")
	}
	if !VerifyPassword(password, hash2) {
		t.Error("VerifyPassword() failed for hash2")
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	long := strings.Repeat("a", MaxPasswordLength+1)

	if _, err := HashPassword(long); err != ErrPasswordTooLong {
		t.Errorf("HashPassword() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestHashPassword_EmptyAllowed(t *testing.T) {
	// Empty passwords are rejected at the protocol layer, not here.
	hash, err := HashPassword("")
	if err != nil {
		t.Fatalf("HashPassword(\"\") error = %v", err)
	}
	if !VerifyPassword("", hash) {
		t.Error("VerifyPassword() failed for empty password")
	}
}

func TestVerifyPassword_Mismatches(t *testing.T) {
	hash, _ := HashPassword("correct")

	tests := []struct {
		name     string
		password string
		hash     string
	}{
		{"wrong password", "incorrect", hash},
		{"empty password", "", hash},
		{"invalid hash", "correct", "not-a-valid-hash"},
		{"empty hash", "correct", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if VerifyPassword(tc.password, tc.hash) {
				t.Error("VerifyPassword() = true, want false")
			}
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, _ := HashPassword("secret")
	if NeedsRehash(hash) {
		t.Error("NeedsRehash() = true for freshly generated hash")
	}

	if !NeedsRehash("garbage") {
		t.Error("NeedsRehash() = false for invalid hash")
	}
}
