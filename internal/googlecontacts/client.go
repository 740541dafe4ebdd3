// Package googlecontacts runs the Google authorization-code flow for the
// read-only contacts scope and lists the signed-in account's connections.
package googlecontacts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/warmpath/backend/internal/importer"
	"github.com/warmpath/backend/pkg/circuitbreaker"
	"github.com/warmpath/backend/pkg/logger"
	"github.com/warmpath/backend/pkg/retry"
)

const (
	Scope           = "https://www.googleapis.com/auth/contacts.readonly"
	DefaultPageSize = 1000

	defaultBaseURL = "https://people.googleapis.com/v1"
	personFields   = "names,emailAddresses,organizations"
)

// ErrEmptyToken is returned when the token endpoint answers without an access token.
var ErrEmptyToken = eris.New("google: empty access token")

// ErrUnavailable marks People API failures that may succeed on a later
// attempt: transport errors, 429 and 5xx answers.
var ErrUnavailable = eris.New("google: people api unavailable")

func isUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Outcome classifies how an import callback ended.
type Outcome string

const (
	OutcomeImported       Outcome = "imported"
	OutcomeDenied         Outcome = "denied"
	OutcomeStateMismatch  Outcome = "state_mismatch"
	OutcomeNotConfigured  Outcome = "not_configured"
	OutcomeExchangeFailed Outcome = "exchange_failed"
	OutcomeEmptyToken     Outcome = "empty_token"
	OutcomeListFailed     Outcome = "list_failed"
	OutcomeStoreFailed    Outcome = "store_failed"
)

// Person is the subset of a People API person resource the import reads.
type Person struct {
	ResourceName   string         `json:"resourceName"`
	Names          []Name         `json:"names"`
	EmailAddresses []EmailAddress `json:"emailAddresses"`
	Organizations  []Organization `json:"organizations"`
}

type Name struct {
	DisplayName string `json:"displayName"`
}

type EmailAddress struct {
	Value string `json:"value"`
}

type Organization struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Row extracts the first name, email and organization of p.
func (p Person) Row() importer.Row {
	var r importer.Row
	if len(p.Names) > 0 {
		r.Name = strings.TrimSpace(p.Names[0].DisplayName)
	}
	if len(p.EmailAddresses) > 0 {
		r.Email = strings.TrimSpace(p.EmailAddresses[0].Value)
	}
	if len(p.Organizations) > 0 {
		r.Company = strings.TrimSpace(p.Organizations[0].Name)
		r.Role = strings.TrimSpace(p.Organizations[0].Title)
	}
	return r
}

// Rows converts people into import rows.
func Rows(people []Person) []importer.Row {
	rows := make([]importer.Row, 0, len(people))
	for _, p := range people {
		rows = append(rows, p.Row())
	}
	return rows
}

type connectionsResponse struct {
	Connections   []Person `json:"connections"`
	NextPageToken string   `json:"nextPageToken"`
	TotalPeople   int      `json:"totalPeople"`
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the People API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the client used for token exchange and as the base
// transport for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithEndpoint overrides Google's OAuth endpoints.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(c *Client) {
		c.oauth.Endpoint = ep
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry overrides the backoff used for People API calls.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithBreaker overrides the circuit breaker settings for People API calls.
func WithBreaker(cfg circuitbreaker.Config) Option {
	return func(c *Client) {
		c.breakerCfg = cfg
	}
}

type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	http       *http.Client
	pageSize   int
	timeout    time.Duration
	retry      retry.Config
	breakerCfg circuitbreaker.Config
	breaker    *circuitbreaker.Breaker
}

func New(clientID, clientSecret, redirectURI string, opts ...Option) *Client {
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{Scope},
			Endpoint:     google.Endpoint,
		},
		baseURL:  defaultBaseURL,
		http:     &http.Client{},
		pageSize: DefaultPageSize,
		timeout:  15 * time.Second,
		retry:    retry.DefaultConfig(),
		breakerCfg: circuitbreaker.Config{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}

	log := logger.Named("google")
	c.retry.Retryable = isUnavailable
	c.retry.Logger = log
	c.breakerCfg.Failure = isUnavailable
	c.breakerCfg.Logger = log
	c.breaker = circuitbreaker.New("people-api", c.breakerCfg)
	return c
}

// AuthCodeURL builds the consent URL with offline access and prompt=consent.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, eris.Wrap(err, "google: exchange code")
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return token, nil
}

// ListConnections fetches a single page of the account's connections.
// Unavailable answers are retried with backoff; repeated ones trip a breaker
// that fails later calls fast with circuitbreaker.ErrOpen.
func (c *Client) ListConnections(ctx context.Context, token *oauth2.Token) ([]Person, error) {
	return retry.DoValue(ctx, c.retry, func(ctx context.Context) ([]Person, error) {
		var people []Person
		err := c.breaker.Execute(func() error {
			var err error
			people, err = c.listOnce(ctx, token)
			return err
		})
		return people, err
	})
}

func (c *Client) listOnce(ctx context.Context, token *oauth2.Token) ([]Person, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("personFields", personFields)
	endpoint := c.baseURL + "/people/me/connections?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Accept", "application/json")

	hc := c.oauth.Client(c.withHTTPClient(ctx), token)
	resp, err := hc.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUnavailable, "list connections: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, eris.Wrapf(ErrUnavailable, "unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result connectionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal connections")
	}
	return result.Connections, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}
