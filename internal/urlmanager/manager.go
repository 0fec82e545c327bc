// Package urlmanager implements the URL Manager (C13): the public-facing
// registry on top of the Tunnel Adapter's TunnelRecord, adding QR payload
// generation, periodic health polling that emits exactly one
// health_changed event per transition, and analytics aggregation.
// Grounded on the Tunnel Adapter's health classification and the event
// bus's publish/subscribe pattern.
package urlmanager

import (
	"context"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/skiffhost/skiffd/internal/eventbus"
	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/tunnel"
)

// Manager owns the URLRecord registry.
type Manager struct {
	mu      sync.RWMutex
	records map[string]*models.URLRecord // by url_id
	byApp   map[string]string            // app_id -> url_id

	adapter *tunnel.Adapter
	bus     *eventbus.Bus
	stopCh  chan struct{}
}

func NewManager(adapter *tunnel.Adapter, bus *eventbus.Bus) *Manager {
	return &Manager{
		records: make(map[string]*models.URLRecord),
		byApp:   make(map[string]string),
		adapter: adapter,
		bus:     bus,
	}
}

// Register wraps an already-open TunnelRecord as a URLRecord, generating
// its QR payload eagerly since it rarely changes. If app_id already has
// a URLRecord for the same local_port, the existing url_id is reused
// (survives-a-restart rule in the data model).
func (m *Manager) Register(record models.TunnelRecord) (*models.URLRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	png, err := qrcode.Encode(record.PublicURL, qrcode.Medium, 256)
	if err != nil {
		return nil, skifferrors.New(skifferrors.KindSchemaParse, "urlmanager", "qr encode", err)
	}
	record.QRPayload = png

	if existingID, ok := m.byApp[record.AppID]; ok {
		if existing, ok := m.records[existingID]; ok && existing.Tunnel.LocalPort == record.LocalPort {
			existing.Tunnel = record
			return existing, nil
		}
	}

	urlID := record.TunnelID // url_id reuses tunnel_id since one tunnel maps to one public URL
	entry := &models.URLRecord{
		URLID:       urlID,
		Tunnel:      record,
		Health:      models.HealthUnknown,
		LastCheckAt: time.Now(),
	}
	m.records[urlID] = entry
	m.byApp[record.AppID] = urlID
	return entry, nil
}

// Unregister drops the URLRecord for url_id. It does not close the
// underlying tunnel; callers close the tunnel first via the adapter.
func (m *Manager) Unregister(urlID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.records[urlID]
	if !ok {
		return true
	}
	delete(m.records, urlID)
	if m.byApp[entry.Tunnel.AppID] == urlID {
		delete(m.byApp, entry.Tunnel.AppID)
	}
	return true
}

// Get returns a snapshot of url_id.
func (m *Manager) Get(urlID string) (*models.URLRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.records[urlID]
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// ForApp returns the URLRecord registered for app_id, if any.
func (m *Manager) ForApp(appID string) (*models.URLRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	urlID, ok := m.byApp[appID]
	if !ok {
		return nil, false
	}
	entry := m.records[urlID]
	cp := *entry
	return &cp, true
}

// ListActive returns every URLRecord whose underlying tunnel is active.
func (m *Manager) ListActive() []*models.URLRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.URLRecord, 0, len(m.records))
	for _, entry := range m.records {
		if entry.Tunnel.Status == models.TunnelActive {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out
}

// Check runs one health probe against url_id via the Tunnel Adapter and
// publishes a health_changed event immediately when the returned tag
// differs from the last recorded health, exactly once per transition.
func (m *Manager) Check(ctx context.Context, urlID string) (models.HealthTag, error) {
	m.mu.RLock()
	entry, ok := m.records[urlID]
	m.mu.RUnlock()
	if !ok {
		return models.HealthUnknown, skifferrors.New(skifferrors.KindConfiguration, "urlmanager", "unknown url_id", nil)
	}

	tag, responseMs, err := m.adapter.Health(ctx, entry.Tunnel.TunnelID)
	if err != nil {
		return models.HealthUnknown, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry.LastCheckAt = time.Now()
	entry.Tunnel.ResponseTimeMs = responseMs

	if tag == entry.Health {
		return tag, nil
	}

	from := entry.Health
	entry.Health = tag

	if m.bus != nil {
		m.bus.Publish(models.EventHealthChanged, "urlmanager", models.HealthChangedPayload{
			URLID: urlID, From: from, To: tag,
		})
	}
	return tag, nil
}

// StartPolling runs Check on every registered URLRecord at interval
// until Stop is called or ctx is cancelled.
func (m *Manager) StartPolling(ctx context.Context, interval time.Duration) {
	m.stopCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.mu.RLock()
				ids := make([]string, 0, len(m.records))
				for id := range m.records {
					ids = append(ids, id)
				}
				m.mu.RUnlock()
				for _, id := range ids {
					_, _ = m.Check(ctx, id)
				}
			}
		}
	}()
}

func (m *Manager) Stop() {
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}

// Analytics aggregates the current registry into the dashboard snapshot
// named in the external interfaces.
func (m *Manager) Analytics() models.AnalyticsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := models.AnalyticsSnapshot{
		ByProvider: make(map[string]int),
		ByHealth:   make(map[models.HealthTag]int),
	}
	var totalMs int64
	for _, entry := range m.records {
		snap.Total++
		snap.ByProvider[entry.Tunnel.Provider]++
		snap.ByHealth[entry.Health]++
		totalMs += entry.Tunnel.ResponseTimeMs
	}
	if snap.Total > 0 {
		snap.AverageResponseMs = float64(totalMs) / float64(snap.Total)
	}
	return snap
}
