package util

import (
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

func TestGenerateFileID(t *testing.T) {
	id := GenerateFileID()
	if !strings.HasPrefix(id, "f_") {
		t.Fatalf("file id %q missing f_ prefix", id)
	}
	if len(id) != 14 {
		t.Fatalf("file id %q has length %d, want 14", id, len(id))
	}
	if id == GenerateFileID() {
		t.Fatal("two generated ids should not collide")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	for _, keyType := range []string{"secret", "public"} {
		generated := GenerateAPIKey(keyType)
		wantPrefix := "sf-" + keyType + "-"
		if !strings.HasPrefix(generated.Key, wantPrefix) {
			t.Errorf("key %q missing %q prefix", generated.Key, wantPrefix)
		}
		if generated.Prefix != generated.Key[:16] {
			t.Errorf("display prefix %q is not the first 16 chars of the key", generated.Prefix)
		}
		if generated.Hash != HashKey(generated.Key) {
			t.Error("stored hash does not match the key material")
		}
		if !ValidKeyFormat(generated.Key) {
			t.Errorf("generated key %q rejected by ValidKeyFormat", generated.Key)
		}
	}
}

func TestValidKeyFormatRejectsGarbage(t *testing.T) {
	for _, key := range []string{"", "sf-secret", "Bearer abc", "pk_live_123", "sf-admin-xxxxxxxx"} {
		if ValidKeyFormat(key) {
			t.Errorf("ValidKeyFormat(%q) = true, want false", key)
		}
	}
}

func TestHashKeyIsDeterministic(t *testing.T) {
	if HashKey("sf-secret-abc") != HashKey("sf-secret-abc") {
		t.Fatal("hash should be deterministic")
	}
	if HashKey("sf-secret-abc") == HashKey("sf-secret-abd") {
		t.Fatal("different keys should hash differently")
	}
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		input string
		want  time.Time
	}{
		{"12h", now.Add(12 * time.Hour)},
		{"1h", now.Add(time.Hour)},
		{"7d", now.Add(7 * 24 * time.Hour)},
		{"30d", now.Add(30 * 24 * time.Hour)},
	}
	for _, c := range cases {
		got, err := ParseExpiry(c.input, now)
		if err != nil {
			t.Errorf("ParseExpiry(%q) returned error: %v", c.input, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseExpiry(%q) = %v, want %v", c.input, got, c.want)
		}
	}

	for _, bad := range []string{"", "12", "h", "12m", "d7", "1.5h", "-3d", "12hh"} {
		if _, err := ParseExpiry(bad, now); err == nil {
			t.Errorf("ParseExpiry(%q) should fail", bad)
		}
	}
}

func TestValidateJWT(t *testing.T) {
	const secret = "test-secret"

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   "user_123",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	claims, err := ValidateJWT(signed, secret)
	if err != nil {
		t.Fatalf("ValidateJWT returned error: %v", err)
	}
	if claims.Subject != "user_123" {
		t.Fatalf("subject = %q, want user_123", claims.Subject)
	}

	if _, err := ValidateJWT(signed, "wrong-secret"); err == nil {
		t.Fatal("token signed with another secret should fail")
	}

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	signedNoSub, err := noSub.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := ValidateJWT(signedNoSub, secret); err == nil {
		t.Fatal("token without subject should fail")
	}
}
