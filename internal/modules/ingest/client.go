package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/categories"
)

// ErrUpstream marks failures talking to the upstream bookkeeping API.
// Handlers map it to 502 so callers can tell a flaky upstream from a
// local fault.
var ErrUpstream = errors.New("upstream request failed")

const (
	clientTimeout = 10 * time.Second
	maxRetries    = 3
	retryBase     = time.Second
)

// Client talks to the upstream bookkeeping API over HTTP JSON. The bearer
// token rides on every request and is never logged.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new upstream API client.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: clientTimeout},
		log:     log.With().Str("client", "upstream").Logger(),
	}
}

// UpstreamAccount is one account as reported by the upstream API.
type UpstreamAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
}

// UpstreamTransaction is one bank record as reported by the upstream API.
// Amount is in currency units, signed the same way the ledger stores it:
// debits negative, credits positive.
type UpstreamTransaction struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"account_id"`
	Date       string  `json:"date"`
	Amount     float64 `json:"amount"`
	PayeeName  string  `json:"payee_name"`
	Memo       string  `json:"memo"`
	CategoryID string  `json:"category_id"`
	Cleared    string  `json:"cleared"`
	ImportID   string  `json:"import_id"`
}

// FetchAccounts returns all upstream accounts.
func (c *Client) FetchAccounts(ctx context.Context) ([]UpstreamAccount, error) {
	var result struct {
		Accounts []UpstreamAccount `json:"accounts"`
	}
	if err := c.getJSON(ctx, "/accounts", nil, &result); err != nil {
		return nil, err
	}
	return result.Accounts, nil
}

// FetchTransactions returns upstream records posted on or after sinceISO.
// An empty sinceISO asks for everything the upstream will give us.
func (c *Client) FetchTransactions(ctx context.Context, sinceISO string) ([]UpstreamTransaction, error) {
	query := url.Values{}
	if sinceISO != "" {
		query.Set("since_date", sinceISO)
	}
	var result struct {
		Transactions []UpstreamTransaction `json:"transactions"`
	}
	if err := c.getJSON(ctx, "/transactions", query, &result); err != nil {
		return nil, err
	}
	return result.Transactions, nil
}

// FetchCategories returns the upstream category tree, grouped. The category
// mapper consumes this through the categories.Fetcher interface.
func (c *Client) FetchCategories(ctx context.Context) ([]categories.ExternalGroup, error) {
	var result struct {
		Categories []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Archived   bool   `json:"archived"`
			Categories []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				Archived bool   `json:"archived"`
			} `json:"categories"`
		} `json:"categories"`
	}
	if err := c.getJSON(ctx, "/categories", nil, &result); err != nil {
		return nil, err
	}

	groups := make([]categories.ExternalGroup, 0, len(result.Categories))
	for _, g := range result.Categories {
		group := categories.ExternalGroup{ID: g.ID, Name: g.Name, Archived: g.Archived}
		for _, cat := range g.Categories {
			group.Categories = append(group.Categories, categories.ExternalCategory{
				ID:       cat.ID,
				Name:     cat.Name,
				Archived: cat.Archived,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// getJSON performs one GET against the upstream API. Transport errors and
// 5xx responses are retried up to three times with 1s, 2s then 4s waits;
// any other non-200 is terminal. The context bounds the whole exchange,
// retry waits included.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := retryBase << (attempt - 1)
			c.log.Warn().
				Str("url", endpoint).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Retrying upstream request")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("upstream request aborted: %w", ctx.Err())
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("upstream request aborted: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("API request failed: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("%w: API returned status %d", ErrUpstream, resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%w: failed to parse response: %v", ErrUpstream, err)
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}
