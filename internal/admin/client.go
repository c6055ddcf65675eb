// Package admin talks to the cloud identity service: it exchanges an
// app-password for a short-lived bearer token and verifies that token's
// claims against the service's published key set.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/mzexplorer/internal/apppassword"
	"github.com/dmitrijs2005/mzexplorer/internal/logging"
)

const (
	apiTokenPath = "/identity/resources/auth/v1/api-token"
	jwksPath     = "/.well-known/jwks.json"
)

var (
	ErrVerifyCredential = errors.New("could not verify credentials against the key set")
	ErrEmailNotPresent  = errors.New("email claim not present")
	ErrRetrievingEmail  = errors.New("could not retrieve email from claims")
)

// TokenRequestError reports a non-200 response from the identity service.
// Reason carries the first structured error returned by the service, if any.
type TokenRequestError struct {
	StatusCode int
	Reason     string
}

func (e *TokenRequestError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("token request failed (status %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("token request failed (status %d)", e.StatusCode)
}

// Token is a bearer token together with its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be presented.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Client exchanges an app-password for bearer tokens. The current token is
// cached and reused until it expires; there is no pre-expiry renewal margin.
//
// Safe for concurrent use: callers racing on an expired token perform a
// single refresh.
type Client struct {
	credential apppassword.Credential
	endpoint   string
	httpClient *http.Client
	log        logging.Logger
	now        func() time.Time

	mu    sync.Mutex
	token Token
}

// NewClient builds a Client for the identity service at endpoint
// (scheme://host, no trailing path).
func NewClient(endpoint string, credential apppassword.Credential, log logging.Logger) *Client {
	return &Client{
		credential: credential,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	Expires      string `json:"expires"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Errors []string `json:"errors"`
}

// GetToken returns the cached token, or fetches a fresh one when none is
// held or the held one has expired.
func (c *Client) GetToken(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(c.now()) {
		return c.token, nil
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		return Token{}, err
	}

	c.token = token
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context) (Token, error) {
	body, err := json.Marshal(map[string]string{
		"clientId": c.credential.ClientID.String(),
		"secret":   c.credential.SecretKey.String(),
	})
	if err != nil {
		return Token{}, err
	}

	var resp tokenResponse

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+apiTokenPath, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			reqErr := &TokenRequestError{StatusCode: httpResp.StatusCode, Reason: firstError(httpResp.Body)}
			if httpResp.StatusCode >= http.StatusInternalServerError {
				return retry.RetryableError(reqErr)
			}
			return reqErr
		}

		return json.NewDecoder(httpResp.Body).Decode(&resp)
	})
	if err != nil {
		return Token{}, err
	}

	c.log.Debug(ctx, "token issued", "expires_in", resp.ExpiresIn)

	return Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// firstError pulls the first structured error out of an identity-service
// error body. Returns "" when the body is not in the expected shape.
func firstError(r io.Reader) string {
	var resp errorResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil || len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0]
}
