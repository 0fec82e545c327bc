// Package manifest implements the Manifest Scanner (C5): walking an app
// directory, identifying dependency-manifest files by name pattern, and
// parsing each to the extent its kind permits. The per-kind parsers run
// concurrently via errgroup, adapted from the preflight-checker fan-out
// pattern the teacher uses to run independent checks over one input.
package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/skiffhost/skiffd/internal/models"
)

// ignoreDirs mirrors the scan's ignore list: version-control, cache,
// build, and environment directories are never descended into.
var ignoreDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	"__pycache__": true, ".mypy_cache": true, ".pytest_cache": true,
	"node_modules": true, "dist": true, "build": true, ".tox": true,
	"venv": true, ".venv": true, "env": true, ".env": true,
	"conda-env": true, ".idea": true, ".vscode": true,
}

// Matcher decides whether a filename belongs to a manifest kind.
type matcher struct {
	kind  models.ManifestKind
	match func(name string) bool
	parse func(path string, raw []byte) models.ParsedManifest
}

var matchers = []matcher{
	{
		kind: models.ManifestPipRequirements,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			return strings.Contains(lower, "requirements") && (strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".in"))
		},
		parse: parsePipRequirements,
	},
	{
		kind: models.ManifestCondaEnvironment,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			isYAML := strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
			return isYAML && (strings.Contains(lower, "environment") || strings.Contains(lower, "conda"))
		},
		parse: parseCondaEnvironment,
	},
	{
		kind: models.ManifestNodePackage,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			return lower == "package.json" || lower == "package-lock.json" || lower == "yarn.lock" || lower == "pnpm-lock.yaml"
		},
		parse: parseNodePackage,
	},
	{
		kind: models.ManifestPythonSetup,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			return lower == "setup.py" || lower == "setup.cfg" || lower == "pyproject.toml"
		},
		parse: parsePythonSetup,
	},
	{
		kind: models.ManifestLockfile,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			return lower == "pipfile.lock" || lower == "poetry.lock" || lower == "pipfile"
		},
		parse: parseLockfile,
	},
	{
		kind: models.ManifestContainerfile,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			return lower == "dockerfile" || strings.HasPrefix(lower, "dockerfile.") || lower == "containerfile"
		},
		parse: parsePassthrough,
	},
	{
		kind: models.ManifestBuildSystem,
		match: func(name string) bool {
			lower := strings.ToLower(name)
			return lower == "makefile" || lower == "cmakelists.txt"
		},
		parse: parsePassthrough,
	},
}

// Scanner walks an app directory and produces a ScanResult.
type Scanner struct{}

func NewScanner() *Scanner {
	return &Scanner{}
}

type foundFile struct {
	path string
	m    matcher
}

// Scan walks app_dir, identifies manifest files, and parses them
// concurrently. Unreadable or unparseable files are recorded with an
// error note rather than failing the whole scan.
func (s *Scanner) Scan(ctx context.Context, appDir string) (models.ScanResult, error) {
	var found []foundFile

	err := filepath.WalkDir(appDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if ignoreDirs[d.Name()] && path != appDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		for _, m := range matchers {
			if m.match(name) {
				found = append(found, foundFile{path: path, m: m})
				break
			}
		}
		return nil
	})
	if err != nil {
		return models.ScanResult{}, err
	}

	files := make([]models.DependencyFile, len(found))
	group, groupCtx := errgroup.WithContext(ctx)
	_ = groupCtx
	for i := range found {
		i := i
		group.Go(func() error {
			files[i] = parseOne(found[i].path, found[i].m)
			return nil
		})
	}
	_ = group.Wait() // parseOne never returns an error; failures are recorded per-file

	return models.ScanResult{AppDir: appDir, Files: files}, nil
}

func parseOne(path string, m matcher) models.DependencyFile {
	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	raw, readErr := os.ReadFile(path)
	var parsed models.ParsedManifest
	if readErr != nil {
		parsed = models.ParsedManifest{ParseError: readErr.Error()}
	} else {
		parsed = m.parse(path, raw)
	}

	return models.DependencyFile{
		Kind:    m.kind,
		Path:    path,
		RawSize: size,
		Parsed:  parsed,
	}
}
