package platform

import (
	"os"
	"path/filepath"

	"github.com/skiffhost/skiffd/internal/models"
)

// ProfileFor looks up the static profile for tag, grounded on the
// original setup_paths() per-platform path table. Unknown falls back to
// a home-directory-based profile.
func ProfileFor(tag models.PlatformTag) *models.PlatformProfile {
	switch tag {
	case models.PlatformColab:
		return &models.PlatformProfile{
			Tag: tag,
			Paths: map[models.PathKind]string{
				models.PathBase:      "/content",
				models.PathApps:      "/content/skiffd/apps",
				models.PathData:      "/content/skiffd/data",
				models.PathTemp:      "/content/skiffd/tmp",
				models.PathLogs:      "/content/skiffd/logs",
				models.PathCache:     "/content/skiffd/cache",
				models.PathModels:    "/content/skiffd/models",
				models.PathConfig:    "/content/skiffd/config",
				models.PathWorkspace: "/content/skiffd",
				models.PathDrive:     "/content/drive/MyDrive/skiffd",
			},
			Capabilities: models.Capabilities{HasPersistentMount: true, HasNvidiaGPU: true, ContainerRuntime: "none"},
		}
	case models.PlatformKaggle:
		return &models.PlatformProfile{
			Tag: tag,
			Paths: map[models.PathKind]string{
				models.PathBase:      "/kaggle/working",
				models.PathApps:      "/kaggle/working/skiffd/apps",
				models.PathData:      "/kaggle/working/skiffd/data",
				models.PathTemp:      "/kaggle/working/skiffd/tmp",
				models.PathLogs:      "/kaggle/working/skiffd/logs",
				models.PathCache:     "/kaggle/working/skiffd/cache",
				models.PathModels:    "/kaggle/working/skiffd/models",
				models.PathConfig:    "/kaggle/working/skiffd/config",
				models.PathWorkspace: "/kaggle/working/skiffd",
			},
			Capabilities: models.Capabilities{HasPersistentMount: false, HasNvidiaGPU: true, ContainerRuntime: "none"},
		}
	case models.PlatformPaperspace:
		return &models.PlatformProfile{
			Tag: tag,
			Paths: map[models.PathKind]string{
				models.PathBase:      "/notebooks",
				models.PathApps:      "/notebooks/skiffd/apps",
				models.PathData:      "/notebooks/skiffd/data",
				models.PathTemp:      "/notebooks/skiffd/tmp",
				models.PathLogs:      "/notebooks/skiffd/logs",
				models.PathCache:     "/notebooks/skiffd/cache",
				models.PathModels:    "/notebooks/skiffd/models",
				models.PathConfig:    "/notebooks/skiffd/config",
				models.PathWorkspace: "/notebooks",
				models.PathShared:    "/storage/skiffd",
			},
			Capabilities: models.Capabilities{HasPersistentMount: true, HasNvidiaGPU: true, ContainerRuntime: "none"},
		}
	case models.PlatformRunPod, models.PlatformVastAI:
		return &models.PlatformProfile{
			Tag: tag,
			Paths: map[models.PathKind]string{
				models.PathBase:      "/workspace",
				models.PathApps:      "/workspace/skiffd/apps",
				models.PathData:      "/workspace/skiffd/data",
				models.PathTemp:      "/workspace/skiffd/tmp",
				models.PathLogs:      "/workspace/skiffd/logs",
				models.PathCache:     "/workspace/skiffd/cache",
				models.PathModels:    "/workspace/skiffd/models",
				models.PathConfig:    "/workspace/skiffd/config",
				models.PathWorkspace: "/workspace",
			},
			Capabilities: models.Capabilities{HasPersistentMount: true, HasNvidiaGPU: true, ContainerRuntime: "docker"},
		}
	case models.PlatformLightning:
		base := "/teamspace/studios/this_studio"
		return &models.PlatformProfile{
			Tag: tag,
			Paths: map[models.PathKind]string{
				models.PathBase:      base,
				models.PathApps:      filepath.Join(base, "skiffd/apps"),
				models.PathData:      filepath.Join(base, "skiffd/data"),
				models.PathTemp:      filepath.Join(base, "skiffd/tmp"),
				models.PathLogs:      filepath.Join(base, "skiffd/logs"),
				models.PathCache:     filepath.Join(base, "skiffd/cache"),
				models.PathModels:    filepath.Join(base, "skiffd/models"),
				models.PathConfig:    filepath.Join(base, "skiffd/config"),
				models.PathWorkspace: base,
			},
			Capabilities: models.Capabilities{HasPersistentMount: true, HasNvidiaGPU: true, ContainerRuntime: "docker"},
		}
	default:
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = os.TempDir()
		}
		base := filepath.Join(home, ".skiffd")
		return &models.PlatformProfile{
			Tag: models.PlatformUnknown,
			Paths: map[models.PathKind]string{
				models.PathBase:      base,
				models.PathApps:      filepath.Join(base, "apps"),
				models.PathData:      filepath.Join(base, "data"),
				models.PathTemp:      filepath.Join(base, "tmp"),
				models.PathLogs:      filepath.Join(base, "logs"),
				models.PathCache:     filepath.Join(base, "cache"),
				models.PathModels:    filepath.Join(base, "models"),
				models.PathConfig:    filepath.Join(base, "config"),
				models.PathWorkspace: base,
			},
			Capabilities: models.Capabilities{HasPersistentMount: false, HasNvidiaGPU: false, ContainerRuntime: "none"},
		}
	}
}
