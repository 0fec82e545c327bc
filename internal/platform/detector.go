// Package platform implements the Platform Detector (C1): a
// deterministic, pure-of-environment probe that identifies the host
// cloud platform and returns its canonical profile. Grounded on the
// original PLATFORM_MARKERS/detect_platform cascade
// (env vars -> filesystem sentinels -> metadata endpoints), generalized
// into an ordered list of probes with environment-variable signal
// breaking ties over filesystem signal.
package platform

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/skiffhost/skiffd/internal/models"
)

// envMarkers is the platform marker table: each platform is confirmed by
// the presence of any of its listed environment variables.
var envMarkers = map[models.PlatformTag][]string{
	models.PlatformColab:      {"COLAB_GPU", "COLAB_TPU_ADDR", "COLAB_RELEASE_TAG"},
	models.PlatformKaggle:     {"KAGGLE_URL_BASE", "KAGGLE_KERNEL_RUN_TYPE"},
	models.PlatformPaperspace: {"PAPERSPACE_CLUSTER_ID", "PS_API_KEY"},
	models.PlatformRunPod:     {"RUNPOD_POD_ID", "RUNPOD_API_KEY"},
	models.PlatformVastAI:     {"VAST_CONTAINERLABEL"},
	models.PlatformLightning:  {"LIGHTNING_CLOUD_URL", "LIGHTNING_GRID_URL"},
}

// fsMarkers is the filesystem-sentinel table: a directory whose presence
// corroborates (but, per the tie-break rule, does not outrank an
// env-var match) the platform.
var fsMarkers = map[models.PlatformTag][]string{
	models.PlatformColab:      {"/content", "/opt/google-cloud-sdk"},
	models.PlatformKaggle:     {"/kaggle/working", "/kaggle/input"},
	models.PlatformPaperspace: {"/notebooks", "/storage"},
	models.PlatformRunPod:     {"/workspace"},
	models.PlatformVastAI:     {"/workspace"},
	models.PlatformLightning:  {"/teamspace/studios/this_studio"},
}

// metadataEndpoints lets a cloud metadata service corroborate a platform
// when neither env vars nor filesystem sentinels matched. Each is probed
// with a short timeout; a non-error response counts as a match.
var metadataEndpoints = map[models.PlatformTag]string{
	models.PlatformPaperspace: "http://metadata.paperspace.com/v1/ping",
}

// Detector implements detect() / profile_for(tag).
type Detector struct {
	httpClient *http.Client
	lookupEnv  func(string) (string, bool)
	statDir    func(string) bool
}

// NewDetector constructs a Detector with real OS/network probes. Tests
// substitute lookupEnv/statDir to make detection hermetic.
func NewDetector() *Detector {
	return &Detector{
		httpClient: &http.Client{Timeout: 500 * time.Millisecond},
		lookupEnv:  os.LookupEnv,
		statDir: func(p string) bool {
			info, err := os.Stat(p)
			return err == nil && info.IsDir()
		},
	}
}

// Detect runs the cascade: env vars -> filesystem sentinels -> metadata
// endpoints; the first confident match wins. It never raises: an
// unmatched host returns the unknown fallback profile.
func (d *Detector) Detect(ctx context.Context) *models.PlatformProfile {
	if tag, ok := d.detectByEnvVars(); ok {
		return ProfileFor(tag)
	}
	if tag, ok := d.detectByFilesystem(); ok {
		return ProfileFor(tag)
	}
	if tag, ok := d.detectByMetadata(ctx); ok {
		return ProfileFor(tag)
	}
	return ProfileFor(models.PlatformUnknown)
}

func (d *Detector) detectByEnvVars() (models.PlatformTag, bool) {
	for tag, vars := range envMarkers {
		for _, v := range vars {
			if val, ok := d.lookupEnv(v); ok && val != "" {
				return tag, true
			}
		}
	}
	return "", false
}

func (d *Detector) detectByFilesystem() (models.PlatformTag, bool) {
	// Fixed probe order: runpod and vastai share /workspace, so map
	// iteration order would otherwise pick between them at random.
	order := []models.PlatformTag{
		models.PlatformColab, models.PlatformKaggle, models.PlatformPaperspace,
		models.PlatformRunPod, models.PlatformVastAI, models.PlatformLightning,
	}
	for _, tag := range order {
		for _, dir := range fsMarkers[tag] {
			if d.statDir(dir) {
				return tag, true
			}
		}
	}
	return "", false
}

func (d *Detector) detectByMetadata(ctx context.Context) (models.PlatformTag, bool) {
	for tag, url := range metadataEndpoints {
		reqCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := d.httpClient.Do(req)
		cancel()
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return tag, true
		}
	}
	return "", false
}
