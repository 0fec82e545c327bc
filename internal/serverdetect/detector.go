// Package serverdetect implements the Server Detector (C10): scanning
// local ports, classifying the HTTP response by framework signature, and
// binding a port to its owning app via the Supervisor's tracked process
// groups. Grounded on the teacher's Helm-release signature matching
// (substring match against a known-marker table), generalized from
// chart names to HTTP response body/header markers.
package serverdetect

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/skiffhost/skiffd/internal/models"
)

// DefaultCandidatePorts are the common web-UI ports used by the target
// ecosystem (gradio, streamlit, jupyter, comfyui, text-generation-webui,
// generic flask/fastapi dev servers).
var DefaultCandidatePorts = []int{7860, 7861, 8501, 8888, 8188, 7870, 5000, 8000, 8080, 3000}

// PortOwner is the correlation the Supervisor exposes.
type PortOwner interface {
	FindByPort(port int) (string, bool)
}

// Detector implements scan()/classify()/start_monitor().
type Detector struct {
	client       *http.Client
	owner        PortOwner
	classifyCache *lru.Cache[int, models.FrameworkTag]
	stopCh       chan struct{}
}

func NewDetector(owner PortOwner) *Detector {
	cache, _ := lru.New[int, models.FrameworkTag](256)
	return &Detector{
		client:        &http.Client{Timeout: 2 * time.Second},
		owner:         owner,
		classifyCache: cache,
	}
}

// Scan probes each candidate port for a listening TCP socket and, if
// found, classifies it.
func (d *Detector) Scan(ctx context.Context, ports []int) []models.DetectedServer {
	if len(ports) == 0 {
		ports = DefaultCandidatePorts
	}
	var out []models.DetectedServer
	for _, port := range ports {
		if !d.isListening(port) {
			continue
		}
		url := "http://127.0.0.1:" + strconv.Itoa(port)
		tag, cached := d.classifyCache.Get(port)
		if !cached {
			tag = d.Classify(ctx, url)
			if tag != models.FrameworkUnknown {
				d.classifyCache.Add(port, tag)
			}
		}

		status := models.ServerRunning
		var owningAppID string
		if d.owner != nil {
			if appID, ok := d.owner.FindByPort(port); ok {
				owningAppID = appID
			}
		}

		out = append(out, models.DetectedServer{
			Port:        port,
			URL:         url,
			Framework:   tag,
			Status:      status,
			OwningAppID: owningAppID,
			DetectedAt:  time.Now(),
		})
	}
	return out
}

func (d *Detector) isListening(port int) bool {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(port), 300*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// signature is one (marker -> framework) matcher, checked against the
// body and headers of the response from the probed URL.
type signature struct {
	framework models.FrameworkTag
	bodyMarkers []string
	headerMarkers map[string]string // header name -> substring
}

var signatures = []signature{
	{framework: models.FrameworkGradio, bodyMarkers: []string{"gradio", "__gradio_mode__"}},
	{framework: models.FrameworkStreamlit, bodyMarkers: []string{"streamlit"}, headerMarkers: map[string]string{"Server": "TornadoServer"}},
	{framework: models.FrameworkJupyter, bodyMarkers: []string{"jupyter", "jupyter-config-data"}},
	{framework: models.FrameworkComfyUI, bodyMarkers: []string{"comfyui", "comfy-ui"}},
	{framework: models.FrameworkTextGenWebUI, bodyMarkers: []string{"text-generation-webui", "oobabooga"}},
	{framework: models.FrameworkFastAPI, bodyMarkers: []string{"\"openapi\""}},
	{framework: models.FrameworkFlask, headerMarkers: map[string]string{"Server": "Werkzeug"}},
}

// Classify fetches a small sample of the response and matches it against
// the signature table. Unknown is always a valid outcome.
func (d *Detector) Classify(ctx context.Context, url string) models.FrameworkTag {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FrameworkUnknown
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return models.FrameworkUnknown
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	lowerBody := strings.ToLower(string(body))

	for _, sig := range signatures {
		for _, marker := range sig.bodyMarkers {
			if strings.Contains(lowerBody, strings.ToLower(marker)) {
				return sig.framework
			}
		}
		for header, marker := range sig.headerMarkers {
			if strings.Contains(strings.ToLower(resp.Header.Get(header)), strings.ToLower(marker)) {
				return sig.framework
			}
		}
	}
	return models.FrameworkUnknown
}

// StartMonitor runs Scan on an interval, pushing each batch to sink,
// until Stop is called or ctx is cancelled.
func (d *Detector) StartMonitor(ctx context.Context, interval time.Duration, sink func([]models.DetectedServer)) {
	d.stopCh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				sink(d.Scan(ctx, nil))
			}
		}
	}()
}

func (d *Detector) Stop() {
	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
}
