// Package paths implements the Path Mapper (C2): translation of logical
// path kinds to physical paths under the active platform profile, plus
// best-effort file operations grounded on the original path_mapper.py's
// ensure/copy/move/link helpers.
package paths

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
	"github.com/skiffhost/skiffd/internal/models"
)

// ErrForbidden distinguishes "this kind is intentionally absent from the
// active profile" from a generic lookup miss.
var ErrForbidden = fmt.Errorf("path kind not available on this platform")

// Mapper implements map()/ensure()/copy()/move()/link().
type Mapper struct {
	profile *models.PlatformProfile
}

func NewMapper(profile *models.PlatformProfile) *Mapper {
	return &Mapper{profile: profile}
}

// Map joins the canonical base for kind with the optional relative tail.
// Optional kinds (drive, shared) absent from the profile return
// ErrForbidden rather than a generic error, per the invariant in §4.2.
func (m *Mapper) Map(kind models.PathKind, relative string) (string, error) {
	base, ok := m.profile.Path(kind)
	if !ok {
		if kind == models.PathDrive || kind == models.PathShared {
			return "", ErrForbidden
		}
		return "", skifferrors.New(skifferrors.KindConfiguration, "paths", fmt.Sprintf("unknown path kind %q", kind), nil)
	}
	if relative == "" {
		return base, nil
	}
	return filepath.Join(base, relative), nil
}

// Ensure creates absPath and all ancestors. Idempotent.
func (m *Mapper) Ensure(absPath string) error {
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		if os.IsPermission(err) {
			return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", absPath, err)
		}
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", absPath, err)
	}
	return nil
}

// Copy performs a best-effort file copy, creating dst's parent directory
// first.
func (m *Mapper) Copy(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", src, err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	return os.Rename(tmp, dst)
}

// Move renames src to dst, creating dst's parent first.
func (m *Mapper) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	return nil
}

// Link creates (or replaces) a symlink at dst pointing to src.
func (m *Mapper) Link(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
		}
	}
	if err := os.Symlink(src, dst); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "paths", dst, err)
	}
	return nil
}
