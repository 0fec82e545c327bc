package urlmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/eventbus"
	"github.com/skiffhost/skiffd/internal/models"
	"github.com/skiffhost/skiffd/internal/tunnel"
)

type fakeProvider struct {
	name string
	url  string
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Open(ctx context.Context, localPort int, options map[string]string) (string, error) {
	return f.url, nil
}
func (f *fakeProvider) Close(ctx context.Context, publicURL string) error { return nil }

func TestRegisterGeneratesQRPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := tunnel.NewAdapter(&fakeProvider{name: "p", url: srv.URL})
	record, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	mgr := NewManager(adapter, nil)
	entry, err := mgr.Register(*record)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.Tunnel.QRPayload)
	assert.Equal(t, record.TunnelID, entry.URLID)
}

func TestCheckPublishesTransitionOnFirstDifferingProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := tunnel.NewAdapter(&fakeProvider{name: "p", url: srv.URL})
	record, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	bus := eventbus.New("", 100)
	mgr := NewManager(adapter, bus)
	entry, err := mgr.Register(*record)
	require.NoError(t, err)
	entry.Health = models.HealthHealthy

	sub := bus.Subscribe(func(e models.Event) bool { return e.Kind == models.EventHealthChanged })
	defer sub.Unsubscribe()

	tag, err := mgr.Check(context.Background(), entry.URLID)
	require.NoError(t, err)
	assert.Equal(t, models.HealthUnhealthy, tag) // a single differing probe flips health immediately

	select {
	case event := <-sub.Events():
		payload := event.Payload.(models.HealthChangedPayload)
		assert.Equal(t, models.HealthHealthy, payload.From)
		assert.Equal(t, models.HealthUnhealthy, payload.To)
	default:
		t.Fatal("expected a health_changed event to have been published")
	}

	// A second consecutive probe with the same tag reports no further
	// transition and does not re-publish.
	tag, err = mgr.Check(context.Background(), entry.URLID)
	require.NoError(t, err)
	assert.Equal(t, models.HealthUnhealthy, tag)

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected extra health_changed event: %+v", event)
	default:
	}
}

func TestAnalyticsAggregatesByProviderAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := tunnel.NewAdapter(&fakeProvider{name: "p", url: srv.URL})
	record, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	mgr := NewManager(adapter, nil)
	_, err = mgr.Register(*record)
	require.NoError(t, err)

	snap := mgr.Analytics()
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.ByProvider["p"])
}
