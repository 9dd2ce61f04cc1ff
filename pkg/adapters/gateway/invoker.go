// Package gateway invokes stages through an OpenFaaS-style function gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/baton/pkg/domain"
)

// Mode selects how a trigger reaches the next stage.
type Mode string

const (
	// ModeDirect calls GET /function/<next> on the gateway.
	ModeDirect Mode = "direct"
	// ModeRelay posts the trigger to the dedicated trigger function, which then
	// calls the next stage itself.
	ModeRelay Mode = "relay"
)

// ParseMode maps a config string to a Mode. Empty means relay.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeRelay:
		return ModeRelay, nil
	case ModeDirect:
		return ModeDirect, nil
	}
	return "", fmt.Errorf("%w: unknown trigger mode %q", domain.ErrConfiguration, s)
}

// Invoker implements ports.Invoker over HTTP.
type Invoker struct {
	client   *http.Client
	base     string
	mode     Mode
	trigger  string
	user     string
	password string
}

type Option func(*Invoker)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Invoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithMode selects direct or relay dispatch.
func WithMode(m Mode) Option {
	return func(i *Invoker) {
		i.mode = m
	}
}

// WithTriggerStage names the relay function. Defaults to domain.DefaultTriggerStage.
func WithTriggerStage(name string) Option {
	return func(i *Invoker) {
		if name != "" {
			i.trigger = name
		}
	}
}

// WithBasicAuth sets gateway credentials.
func WithBasicAuth(user, password string) Option {
	return func(i *Invoker) {
		i.user = user
		i.password = password
	}
}

// New creates an invoker for the gateway at endpoint ("host:port" or a full URL).
func New(endpoint string, opts ...Option) (*Invoker, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: gateway endpoint is required", domain.ErrConfiguration)
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("%w: gateway endpoint: %w", domain.ErrConfiguration, err)
	}
	inv := &Invoker{
		client:  http.DefaultClient,
		base:    strings.TrimRight(endpoint, "/"),
		mode:    ModeRelay,
		trigger: domain.DefaultTriggerStage,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv, nil
}

// Mode returns the configured dispatch mode.
func (i *Invoker) Mode() Mode { return i.mode }

// FunctionURL returns the gateway URL of a stage.
func (i *Invoker) FunctionURL(stage string) string {
	return i.base + "/function/" + url.PathEscape(stage)
}

// Invoke submits the trigger. Only the dispatch status is checked; the response
// body is discarded.
func (i *Invoker) Invoke(ctx context.Context, req domain.TriggerRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	var (
		httpReq *http.Request
		err     error
	)
	switch i.mode {
	case ModeDirect:
		target := i.FunctionURL(req.NextStage)
		if req.RunID != "" {
			target += "?" + url.Values{domain.FieldRunID: {req.RunID}}.Encode()
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	default:
		var body []byte
		body, err = json.Marshal(req)
		if err != nil {
			return fmt.Errorf("gateway: encode trigger: %w", err)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, i.FunctionURL(i.trigger), bytes.NewReader(body))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("gateway: new request: %w", err)
	}
	if i.user != "" {
		httpReq.SetBasicAuth(i.user, i.password)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway %s %q: %w", httpReq.Method, httpReq.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s %q: status %d", httpReq.Method, httpReq.URL, resp.StatusCode)
	}
	return nil
}
