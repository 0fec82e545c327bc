package tunnel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/retry"
)

// APIProvider opens a tunnel by calling a REST control-plane instead of
// spawning a local binary (the shape services like localtunnel-hosted or
// a managed ngrok account expose). Transient network failures retry per
// the shared backoff policy before surfacing as network_transient.
type APIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAPIProvider(name, baseURL, apiKey string) *APIProvider {
	return &APIProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *APIProvider) Name() string { return p.name }

type openRequest struct {
	LocalPort int               `json:"local_port"`
	Options   map[string]string `json:"options,omitempty"`
}

type openResponse struct {
	PublicURL string `json:"public_url"`
	TunnelRef string `json:"tunnel_ref"`
}

// openPolicy caps retries for a foreground open() call at 4 attempts,
// unlike DefaultPolicy, whose attempt count is unbounded.
var openPolicy = retry.Policy{Initial: 1 * time.Second, Multiplier: 2, Max: 8 * time.Second, MaxAttempts: 4}

func (p *APIProvider) Open(ctx context.Context, localPort int, options map[string]string) (string, error) {
	var out openResponse
	err := retry.Do(ctx, openPolicy, isTransientHTTP, func(ctx context.Context) error {
		body, err := json.Marshal(openRequest{LocalPort: localPort, Options: options})
		if err != nil {
			return skifferrors.New(skifferrors.KindSchemaParse, "tunnel", "encode open request", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tunnels", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return skifferrors.New(skifferrors.KindNetworkTransient, "tunnel", p.name+" open request failed", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return skifferrors.New(skifferrors.KindNetworkTransient, "tunnel", fmt.Sprintf("%s returned %d", p.name, resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return skifferrors.New(skifferrors.KindNetworkPermanent, "tunnel", fmt.Sprintf("%s returned %d", p.name, resp.StatusCode), nil)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return "", err
	}
	return out.PublicURL, nil
}

func (p *APIProvider) Close(ctx context.Context, publicURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/tunnels?public_url="+publicURL, nil)
	if err != nil {
		return err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil // close is best-effort; a dead control plane shouldn't block app stop
	}
	defer resp.Body.Close()
	return nil
}

func isTransientHTTP(err error) bool {
	kind, ok := skifferrors.KindOf(err)
	if !ok {
		return true // unclassified network errors (DNS, dial) are assumed transient
	}
	return kind == skifferrors.KindNetworkTransient || kind == skifferrors.KindTimeout
}
