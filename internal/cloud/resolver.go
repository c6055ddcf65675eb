// Package cloud resolves a region identifier ("aws/us-east-1") to the
// network address of the tenant's database endpoint, using the cloud
// region directory service.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/mzexplorer/internal/admin"
	"github.com/dmitrijs2005/mzexplorer/internal/logging"
)

// pageLimit is the page size for the region listing endpoint. Pages are
// fetched sequentially: the server defines cursor semantics.
const pageLimit = 50

var (
	// ErrRegionDisabled marks a region that exists but has not been enabled
	// for the account. Recoverable: callers warn and skip, they do not abort.
	ErrRegionDisabled = errors.New("region is not enabled")

	// ErrProviderNotFound is returned when no provider matches the region id.
	ErrProviderNotFound = errors.New("no provider for region")
)

// Provider is one entry of the region directory.
type Provider struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	CloudProvider string `json:"cloudProvider"`
}

// RegionInfo describes the tenant's endpoint inside one enabled region.
type RegionInfo struct {
	SQLAddress  string `json:"sqlAddress"`
	HTTPAddress string `json:"httpAddress"`
	Resolvable  bool   `json:"resolvable"`
	EnabledAt   string `json:"enabledAt"`
}

// tokenSource supplies the bearer token for directory requests.
// *admin.Client satisfies it.
type tokenSource interface {
	GetToken(ctx context.Context) (admin.Token, error)
}

// Resolver queries the region directory service. Results are not cached
// across calls; every resolution re-reads the directory.
type Resolver struct {
	endpoint   string
	tokens     tokenSource
	httpClient *http.Client
	log        logging.Logger
}

// NewResolver builds a Resolver for the directory service at endpoint.
func NewResolver(endpoint string, tokens tokenSource, log logging.Logger) *Resolver {
	return &Resolver{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type providersPage struct {
	Data       []Provider `json:"data"`
	NextCursor string     `json:"nextCursor"`
}

// ListProviders walks the cursor-paginated listing until the server stops
// returning a next cursor, accumulating every provider record.
func (r *Resolver) ListProviders(ctx context.Context) ([]Provider, error) {
	var providers []Provider
	cursor := ""

	for {
		page, err := r.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		providers = append(providers, page.Data...)

		if page.NextCursor == "" {
			return providers, nil
		}
		cursor = page.NextCursor
	}
}

// GetHost resolves regionID to the SQL-wire address of the tenant's
// endpoint. A disabled region returns ErrRegionDisabled; an unknown region
// id returns ErrProviderNotFound. Both are recoverable display conditions
// for the caller to surface.
func (r *Resolver) GetHost(ctx context.Context, regionID string) (string, error) {
	providers, err := r.ListProviders(ctx)
	if err != nil {
		return "", err
	}

	for _, p := range providers {
		if p.ID == regionID {
			info, err := r.fetchRegionInfo(ctx, p.URL)
			if err != nil {
				return "", err
			}
			if info == nil {
				r.log.Warn(ctx, "region is not enabled", "region", regionID)
				return "", fmt.Errorf("%w: %s", ErrRegionDisabled, regionID)
			}
			return info.SQLAddress, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrProviderNotFound, regionID)
}

func (r *Resolver) fetchPage(ctx context.Context, cursor string) (*providersPage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(pageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page providersPage
	if err := r.getJSON(ctx, r.endpoint+"/api/cloud-regions?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("listing cloud regions: %w", err)
	}
	return &page, nil
}

type regionResponse struct {
	RegionInfo *RegionInfo `json:"regionInfo"`
}

// fetchRegionInfo returns nil info (no error) when the region is disabled:
// the provider answers without a regionInfo field.
func (r *Resolver) fetchRegionInfo(ctx context.Context, providerURL string) (*RegionInfo, error) {
	var resp regionResponse
	if err := r.getJSON(ctx, strings.TrimSuffix(providerURL, "/")+"/api/region", &resp); err != nil {
		return nil, fmt.Errorf("fetching region info: %w", err)
	}
	return resp.RegionInfo, nil
}

func (r *Resolver) getJSON(ctx context.Context, rawURL string, out any) error {
	token, err := r.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(250*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("directory service returned status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("directory service returned status %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})
}
