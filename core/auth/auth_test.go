package auth

import (
	"testing"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals the plaintext")
	}
	if !CheckPasswordHash("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("wrong password", hash) {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateToken(123456, "ada")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != 123456 || claims.Username != "ada" {
		t.Errorf("claims = %d/%q, want 123456/ada", claims.UserID, claims.Username)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	InitJWT("test-secret")

	for _, token := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := ParseToken(token); err == nil {
			t.Errorf("ParseToken(%q) accepted an invalid token", token)
		}
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	InitJWT("secret-one")
	token, err := GenerateToken(1, "ada")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	InitJWT("secret-two")
	if _, err := ParseToken(token); err == nil {
		t.Error("token signed with a different secret accepted")
	}

	InitJWT("secret-one")
	if _, err := ParseToken(token); err != nil {
		t.Errorf("token rejected under its own secret: %v", err)
	}
}
