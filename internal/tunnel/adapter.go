// Package tunnel implements the Tunnel Adapter (C12): a uniform
// interface over two tunnel providers, with health classification
// grounded on the project's circuit-breaker-style resilience design
// (closed/open/half-open reused here as healthy/degraded/unhealthy
// bucketing rather than a literal breaker, since tunnels are
// user-facing resources whose failure should be visible, not
// fast-failed silently).
package tunnel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/models"
)

// Provider is the capability set every tunnel backend implements.
type Provider interface {
	Name() string
	Open(ctx context.Context, localPort int, options map[string]string) (publicURL string, err error)
	Close(ctx context.Context, publicURL string) error
}

// Adapter implements open()/close()/describe()/health() uniformly across
// registered providers, and enforces one-tunnel-per-(provider,
// local_port) per §5's resource-limit policy.
type Adapter struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	records    map[string]*models.TunnelRecord // by tunnel_id
	byPortProv map[string]string               // "provider:port" -> tunnel_id
	httpClient *http.Client

	healthyLatency time.Duration
}

func NewAdapter(providers ...Provider) *Adapter {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Adapter{
		providers:      m,
		records:        make(map[string]*models.TunnelRecord),
		byPortProv:     make(map[string]string),
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		healthyLatency: 500 * time.Millisecond,
	}
}

func key(provider string, port int) string {
	return fmt.Sprintf("%s:%d", provider, port)
}

// Open establishes a tunnel via the named provider and blocks until the
// provider's Open returns: the record comes back active with its public
// URL, or offline together with an error. The starting status is only
// visible to Describe calls made while the provider is still opening.
func (a *Adapter) Open(ctx context.Context, appID string, localPort int, providerName string, options map[string]string) (*models.TunnelRecord, error) {
	provider, ok := a.providers[providerName]
	if !ok {
		return nil, skifferrors.New(skifferrors.KindConfiguration, "tunnel", fmt.Sprintf("unknown provider %q", providerName), nil)
	}

	k := key(providerName, localPort)
	a.mu.Lock()
	if existingID, exists := a.byPortProv[k]; exists {
		if rec, ok := a.records[existingID]; ok && rec.Status != models.TunnelClosed {
			a.mu.Unlock()
			return nil, skifferrors.New(skifferrors.KindConfiguration, "tunnel", "one-tunnel-per-(provider,local_port) already open", nil)
		}
	}
	tunnelID := uuid.NewString()
	record := &models.TunnelRecord{
		TunnelID:  tunnelID,
		Provider:  providerName,
		LocalPort: localPort,
		Status:    models.TunnelStarting,
		AppID:     appID,
		CreatedAt: time.Now(),
	}
	a.records[tunnelID] = record
	a.byPortProv[k] = tunnelID
	a.mu.Unlock()

	publicURL, err := provider.Open(ctx, localPort, options)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		record.Status = models.TunnelOffline
		return cloneRecord(record), skifferrors.New(skifferrors.KindNetworkTransient, "tunnel", "open failed", err)
	}
	record.PublicURL = publicURL
	record.Status = models.TunnelActive
	return cloneRecord(record), nil
}

// Close tears down tunnel_id. Idempotent: closing an already-closed or
// unknown tunnel returns true.
func (a *Adapter) Close(ctx context.Context, tunnelID string) bool {
	a.mu.Lock()
	record, ok := a.records[tunnelID]
	if !ok {
		a.mu.Unlock()
		return true
	}
	if record.Status == models.TunnelClosed {
		a.mu.Unlock()
		return true
	}
	provider := a.providers[record.Provider]
	publicURL := record.PublicURL
	a.mu.Unlock()

	if provider != nil && publicURL != "" {
		_ = provider.Close(ctx, publicURL)
	}

	a.mu.Lock()
	record.Status = models.TunnelClosed
	a.mu.Unlock()
	return true
}

// Describe returns a snapshot of tunnel_id.
func (a *Adapter) Describe(tunnelID string) (*models.TunnelRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	record, ok := a.records[tunnelID]
	if !ok {
		return nil, false
	}
	return cloneRecord(record), true
}

// Health performs an HTTP GET against the tunnel's public URL and
// classifies the result: healthy (2xx, latency under threshold),
// degraded (2xx-3xx but slow, or timeout), unhealthy (>=400), offline
// (connection error), unknown (anything else).
func (a *Adapter) Health(ctx context.Context, tunnelID string) (models.HealthTag, int64, error) {
	a.mu.RLock()
	record, ok := a.records[tunnelID]
	a.mu.RUnlock()
	if !ok {
		return models.HealthUnknown, 0, skifferrors.New(skifferrors.KindConfiguration, "tunnel", "unknown tunnel_id", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, record.PublicURL, nil)
	if err != nil {
		return models.HealthUnknown, 0, err
	}
	resp, err := a.httpClient.Do(req)
	elapsed := time.Since(start)
	elapsedMs := elapsed.Milliseconds()

	a.mu.Lock()
	defer a.mu.Unlock()
	record.ResponseTimeMs = elapsedMs
	record.RequestCount++

	if err != nil {
		if reqCtx.Err() != nil {
			return models.HealthDegraded, elapsedMs, nil
		}
		record.ErrorCount++
		return models.HealthOffline, elapsedMs, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		record.ErrorCount++
		return models.HealthUnhealthy, elapsedMs, nil
	case resp.StatusCode >= 400:
		record.ErrorCount++
		return models.HealthUnhealthy, elapsedMs, nil
	case elapsed >= a.healthyLatency:
		return models.HealthDegraded, elapsedMs, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return models.HealthHealthy, elapsedMs, nil
	default:
		return models.HealthUnknown, elapsedMs, nil
	}
}

func cloneRecord(r *models.TunnelRecord) *models.TunnelRecord {
	cp := *r
	return &cp
}
