package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_Format(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("hash %q should be in Argon2id PHC format", hash)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	ok, err := VerifyPassword("secret123", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("correct password should verify")
	}

	ok, err = VerifyPassword("wrong-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if ok {
		t.Error("wrong password should not verify")
	}
}

func TestVerifyPassword_UniquePerHash(t *testing.T) {
	h1, _ := HashPassword("same-password") //nolint:errcheck // test setup
	h2, _ := HashPassword("same-password") //nolint:errcheck // test setup
	if h1 == h2 {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	for _, hash := range []string{"", "$bcrypt$whatever", "$argon2id$v=19$garbage"} {
		if _, err := VerifyPassword("pw", hash); err == nil {
			t.Errorf("VerifyPassword() with hash %q should fail", hash)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if NeedsRehash(hash) {
		t.Error("freshly generated hash should not need a rehash")
	}

	// Weaker parameters than the current ones.
	stale := "$argon2id$v=19$m=4096,t=1,p=1$c29tZXNhbHQxMjM0NTY$" + strings.Repeat("A", 43)
	if !NeedsRehash(stale) {
		t.Error("hash with weaker parameters should need a rehash")
	}

	if !NeedsRehash("not-a-phc-hash") {
		t.Error("unparseable hash should need a rehash")
	}
}
