package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifyRoundtrip(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	signed := signToken(t, testSecret, Claims{
		UserID: "alice",
		Name:   "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := verifier.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if identity.ID != "alice" || identity.Name != "Alice" {
		t.Errorf("identity = %+v, want alice/Alice", identity)
	}
	if identity.Anonymous() {
		t.Error("verified identity must not be anonymous")
	}
}

func TestVerifyRejections(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"empty", ""},
		{
			"wrong secret",
			signToken(t, []byte("other-secret"), Claims{UserID: "alice"}),
		},
		{
			"expired",
			signToken(t, testSecret, Claims{
				UserID: "alice",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
			}),
		},
		{
			"missing user_id",
			signToken(t, testSecret, Claims{Name: "Nameless"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifier.Verify(tt.token); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("err = %v, want ErrInvalidCredential", err)
			}
		})
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "alice"})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := verifier.Verify(unsigned); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential for alg=none", err)
	}
}
