package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims carried by a session access token.
type AccessClaims struct {
	jwt.RegisteredClaims
}
