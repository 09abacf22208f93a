package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/assayhq/assay/internal/netutil"
)

// expiryBuffer and clockSkew implement spec.md §4.7's "cached token
// considered valid until expires_at - 90s, with 30s clock-skew
// tolerance" — the two margins are additive: a token is refreshed
// 120s before its nominal expiry so neither a slow local clock nor the
// fixed safety buffer can let an expired token go out on the wire.
const (
	expiryBuffer = 90 * time.Second
	clockSkew    = 30 * time.Second
)

// Token is an OIDC access token. Its String/GoString methods always
// redact the value, grounded on mcptrust's observability/receipt/redact.go
// pattern of enforcing redaction at the type level rather than trusting
// every call site to remember not to log a secret.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

func (t Token) String() string   { return "registry.Token{REDACTED}" }
func (t Token) GoString() string { return t.String() }

func (t Token) validAt(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-expiryBuffer - clockSkew))
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// OIDCExchanger performs RFC 8693 token exchange against a registry's
// /auth/oidc/exchange endpoint and caches the resulting access token
// until it nears expiry.
type OIDCExchanger struct {
	HTTP         *http.Client
	ExchangeURL  string
	SubjectToken func() (string, error) // reads the CI-provided subject token, e.g. from env or a workload identity file

	mu     sync.Mutex
	cached Token
}

// Token returns a valid bearer token, exchanging a fresh one if the
// cached token is absent or near expiry, or if force is set (used after
// a registry 401 to force exactly one re-exchange).
func (o *OIDCExchanger) Token(ctx context.Context, now time.Time, force bool) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !force && o.cached.validAt(now) {
		return o.cached.AccessToken, nil
	}

	subject, err := o.SubjectToken()
	if err != nil {
		return "", fmt.Errorf("registry: reading subject token: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:token-exchange")
	form.Set("subject_token", subject)
	form.Set("subject_token_type", "urn:ietf:params:oauth:token-type:jwt")
	form.Set("requested_token_type", "urn:ietf:params:oauth:token-type:access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.ExchangeURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("registry: building oidc exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry: oidc exchange request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &netutil.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var ex exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ex); err != nil {
		return "", fmt.Errorf("registry: decoding oidc exchange response: %w", err)
	}

	o.cached = Token{
		AccessToken: ex.AccessToken,
		ExpiresAt:   now.Add(time.Duration(ex.ExpiresIn) * time.Second),
	}
	return o.cached.AccessToken, nil
}
