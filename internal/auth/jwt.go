// Package auth issues and checks the tokens edge nodes present to the relay.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/clipsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the node id next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	NodeID string `json:"node_id"`
}

// GenerateToken signs an HS256 token for nodeID. A zero validity issues a
// token without expiry.
func GenerateToken(nodeID string, secretKey []byte, validity time.Duration) (string, error) {
	claims := Claims{NodeID: nodeID}
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	if validity != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(validity))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// NodeIDFromToken verifies tokenString and returns the node id it names.
func NodeIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("token expired: %w", common.ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.NodeID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.NodeID, nil
}
