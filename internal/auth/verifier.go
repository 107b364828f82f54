package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Vinmsh25/skillbarter/pkg/types"
)

// ErrInvalidCredential is returned for any credential that does not verify.
// Callers on the connection path treat it as an anonymous identity, not a
// rejection.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims is the token payload this service consumes. Issuance happens
// elsewhere; only HS256 verification is done here.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HMAC-signed bearer tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given signing secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates a token, returning the identity it carries.
func (v *JWTVerifier) Verify(tokenString string) (types.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return types.Identity{}, ErrInvalidCredential
	}
	if claims.UserID == "" {
		return types.Identity{}, ErrInvalidCredential
	}

	return types.Identity{ID: claims.UserID, Name: claims.Name}, nil
}
