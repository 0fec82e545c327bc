package tunnel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/models"
)

type fakeProvider struct {
	name      string
	publicURL string
	openErr   error
	closed    []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Open(ctx context.Context, localPort int, options map[string]string) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return f.publicURL, nil
}

func (f *fakeProvider) Close(ctx context.Context, publicURL string) error {
	f.closed = append(f.closed, publicURL)
	return nil
}

func TestOpenAssignsActiveStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	provider := &fakeProvider{name: "testprovider", publicURL: srv.URL}
	adapter := NewAdapter(provider)

	record, err := adapter.Open(context.Background(), "app-1", 8080, "testprovider", nil)
	require.NoError(t, err)
	assert.Equal(t, models.TunnelActive, record.Status)
	assert.Equal(t, srv.URL, record.PublicURL)
}

func TestOpenRejectsUnknownProvider(t *testing.T) {
	adapter := NewAdapter()
	_, err := adapter.Open(context.Background(), "app-1", 8080, "ghost", nil)
	assert.Error(t, err)
}

func TestOpenRejectsDuplicatePortBinding(t *testing.T) {
	provider := &fakeProvider{name: "p", publicURL: "https://example.test"}
	adapter := NewAdapter(provider)

	_, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	_, err = adapter.Open(context.Background(), "app-2", 8080, "p", nil)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	provider := &fakeProvider{name: "p", publicURL: "https://example.test"}
	adapter := NewAdapter(provider)

	record, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	assert.True(t, adapter.Close(context.Background(), record.TunnelID))
	assert.True(t, adapter.Close(context.Background(), record.TunnelID))
	assert.True(t, adapter.Close(context.Background(), "nonexistent"))
	assert.Len(t, provider.closed, 1)
}

func TestHealthClassifiesSlowResponseAsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(600 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	provider := &fakeProvider{name: "p", publicURL: srv.URL}
	adapter := NewAdapter(provider)
	record, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	tag, _, err := adapter.Health(context.Background(), record.TunnelID)
	require.NoError(t, err)
	assert.Equal(t, models.HealthDegraded, tag)
}

func TestHealthClassifiesServerErrorAsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	provider := &fakeProvider{name: "p", publicURL: srv.URL}
	adapter := NewAdapter(provider)
	record, err := adapter.Open(context.Background(), "app-1", 8080, "p", nil)
	require.NoError(t, err)

	tag, _, err := adapter.Health(context.Background(), record.TunnelID)
	require.NoError(t, err)
	assert.Equal(t, models.HealthUnhealthy, tag)
}
