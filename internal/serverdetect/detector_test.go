package serverdetect

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhost/skiffd/internal/models"
)

type stubOwner struct {
	port  int
	appID string
}

func (s *stubOwner) FindByPort(port int) (string, bool) {
	if port == s.port {
		return s.appID, true
	}
	return "", false
}

func listenOnFreePort(t *testing.T, handler http.Handler) (*httptest.Server, int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return srv, port
}

func TestClassifyMatchesGradioBodyMarker(t *testing.T) {
	srv, port := listenOnFreePort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>__gradio_mode__</html>"))
	}))
	_ = srv

	d := NewDetector(nil)
	tag := d.Classify(context.Background(), "http://127.0.0.1:"+strconv.Itoa(port))
	assert.Equal(t, models.FrameworkGradio, tag)
}

func TestClassifyMatchesFlaskHeaderMarker(t *testing.T) {
	srv, port := listenOnFreePort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "Werkzeug/2.0")
		w.Write([]byte("plain"))
	}))
	_ = srv

	d := NewDetector(nil)
	tag := d.Classify(context.Background(), "http://127.0.0.1:"+strconv.Itoa(port))
	assert.Equal(t, models.FrameworkFlask, tag)
}

func TestClassifyUnknownWhenNoSignatureMatches(t *testing.T) {
	srv, port := listenOnFreePort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nothing recognizable here"))
	}))
	_ = srv

	d := NewDetector(nil)
	tag := d.Classify(context.Background(), "http://127.0.0.1:"+strconv.Itoa(port))
	assert.Equal(t, models.FrameworkUnknown, tag)
}

func TestScanAttributesOwningApp(t *testing.T) {
	srv, port := listenOnFreePort(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("__gradio_mode__"))
	}))
	_ = srv

	d := NewDetector(&stubOwner{port: port, appID: "app-42"})
	servers := d.Scan(context.Background(), []int{port})

	require.Len(t, servers, 1)
	assert.Equal(t, "app-42", servers[0].OwningAppID)
	assert.Equal(t, models.FrameworkGradio, servers[0].Framework)
}

func TestScanSkipsPortsNotListening(t *testing.T) {
	d := NewDetector(nil)
	servers := d.Scan(context.Background(), []int{1}) // privileged, near-certainly closed
	assert.Empty(t, servers)
}

func TestStartMonitorStopsCleanly(t *testing.T) {
	d := NewDetector(nil)
	results := make(chan []models.DetectedServer, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.StartMonitor(ctx, 10*time.Millisecond, func(s []models.DetectedServer) {
		select {
		case results <- s:
		default:
		}
	})

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one monitor tick")
	}

	d.Stop()
}
