package admin

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// jwksDocument is the service's published key set. Only the first key is
// used; the service signs all tokens with a single RS256 key.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// GetClaims fetches the key set from the well-known endpoint, verifies the
// current bearer token's signature with it, and returns the decoded claims.
func (c *Client) GetClaims(ctx context.Context) (jwt.MapClaims, error) {
	token, err := c.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	key, err := c.fetchSigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifyCredential, err)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token.AccessToken, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifyCredential, err)
	}
	if !parsed.Valid {
		return nil, ErrVerifyCredential
	}

	return claims, nil
}

// GetEmail extracts the email claim of the verified token.
func (c *Client) GetEmail(ctx context.Context) (string, error) {
	claims, err := c.GetClaims(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRetrievingEmail, err)
	}

	raw, ok := claims["email"]
	if !ok {
		return "", ErrEmailNotPresent
	}
	email, ok := raw.(string)
	if !ok || email == "" {
		return "", fmt.Errorf("%w: email claim is not a string", ErrRetrievingEmail)
	}

	return email, nil
}

func (c *Client) fetchSigningKey(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+jwksPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	if len(doc.Keys) == 0 {
		return nil, fmt.Errorf("jwks document contains no keys")
	}

	return doc.Keys[0].publicKey()
}

// publicKey rebuilds the RSA public key from the base64url modulus and exponent.
func (k jwksKey) publicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}

	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	e := 0
	for _, b := range eb {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
