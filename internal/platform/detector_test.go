package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/skiffhost/skiffd/internal/models"
)

func TestDetectByEnvVars(t *testing.T) {
	d := NewDetector()
	d.lookupEnv = func(k string) (string, bool) {
		if k == "RUNPOD_POD_ID" {
			return "abc123", true
		}
		return "", false
	}
	d.statDir = func(string) bool { return false }

	profile := d.Detect(context.Background())
	assert.Equal(t, models.PlatformRunPod, profile.Tag)
}

func TestDetectFallsBackToFilesystem(t *testing.T) {
	d := NewDetector()
	d.lookupEnv = func(string) (string, bool) { return "", false }
	d.statDir = func(p string) bool { return p == "/kaggle/working" }

	profile := d.Detect(context.Background())
	assert.Equal(t, models.PlatformKaggle, profile.Tag)
}

func TestDetectUnknownFallback(t *testing.T) {
	d := NewDetector()
	d.lookupEnv = func(string) (string, bool) { return "", false }
	d.statDir = func(string) bool { return false }

	profile := d.Detect(context.Background())
	assert.Equal(t, models.PlatformUnknown, profile.Tag)
	assert.NotEmpty(t, profile.Paths[models.PathBase])
}

func TestEnvVarSignalBeatsFilesystemSignal(t *testing.T) {
	d := NewDetector()
	// Env says colab, filesystem sentinel says kaggle: env wins per the
	// documented tie-break rule.
	d.lookupEnv = func(k string) (string, bool) {
		if k == "COLAB_GPU" {
			return "1", true
		}
		return "", false
	}
	d.statDir = func(p string) bool { return p == "/kaggle/working" }

	profile := d.Detect(context.Background())
	assert.Equal(t, models.PlatformColab, profile.Tag)
}
