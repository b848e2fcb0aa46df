package upbit

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type authClaims struct {
	AccessKey    string `json:"access_key"`
	Nonce        string `json:"nonce"`
	QueryHash    string `json:"query_hash,omitempty"`
	QueryHashAlg string `json:"query_hash_alg,omitempty"`
	jwt.RegisteredClaims
}

// authToken builds the bearer token for a private call. query is the raw
// query string of the request parameters, empty when there are none.
func authToken(accessKey, secretKey, query string) (string, error) {
	claims := authClaims{
		AccessKey: accessKey,
		Nonce:     uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims.QueryHash = hex.EncodeToString(sum[:])
		claims.QueryHashAlg = "SHA512"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}
