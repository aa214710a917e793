/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// TokenClaims is the payload of a relay access token. The relay trusts
// Subject as the sender identity for every frame on the connection.
type TokenClaims struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// MintToken signs a relay access token for the given user with the
// shared relay secret (HS256 JWS, compact serialization).
func MintToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID is required")
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("secret is required")
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	claims := TokenClaims{
		Subject:   userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	token, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	return token, nil
}

// VerifyToken checks the signature and expiry of a relay access token
// and returns the authenticated user ID.
func VerifyToken(token string, secret []byte) (string, error) {
	obj, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", fmt.Errorf("malformed token: %w", err)
	}

	payload, err := obj.Verify(secret)
	if err != nil {
		return "", fmt.Errorf("token signature verification failed: %w", err)
	}

	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("malformed token claims: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	if claims.ExpiresAt != 0 && time.Now().Unix() > claims.ExpiresAt {
		return "", fmt.Errorf("token expired")
	}

	return claims.Subject, nil
}
