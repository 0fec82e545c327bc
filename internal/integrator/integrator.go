// Package integrator implements the Framework Integrator (C11): mutating
// known launch scripts to enable built-in public sharing, with mandatory
// backups and atomic write-temp-then-rename replacement so a crash
// mid-edit never leaves a half-written file, per the design note on
// filesystem edits to third-party source.
package integrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	skifferrors "github.com/skiffhost/skiffd/internal/errors"
)

// launchCallPattern matches calls of the form `<name>.launch(...)` or a
// bare `demo.launch()`/`app.run(...)`, covering the gradio/streamlit/
// flask-style entrypoints this integrator targets. Matching is by
// pattern class (a call taking a parenthesized, possibly-empty argument
// list) rather than full language parsing, per §4.11's rewriting rules.
var launchCallPattern = regexp.MustCompile(`(\w+\.(?:launch|run))\(([^)]*)\)`)

// shareKeywordPattern detects an existing share=True/False keyword inside
// a matched argument list.
var shareKeywordPattern = regexp.MustCompile(`share\s*=\s*(True|False|true|false)`)

// IntegrationPlan names the target files a detect() pass found.
type IntegrationPlan struct {
	AppDir string
	Files  []string
}

// editRecord captures one file's pre/post state for IntegrationRecord
// and for disable()'s restore.
type editRecord struct {
	Path       string
	BackupPath string
	Edited     bool
	Error      string
}

// IntegrationRecord is returned by Enable and consumed by Disable.
type IntegrationRecord struct {
	Plan  IntegrationPlan
	Edits []editRecord
}

// Integrator implements detect()/enable()/disable().
type Integrator struct{}

func New() *Integrator { return &Integrator{} }

var candidateScriptNames = []string{"app.py", "main.py", "run.py", "webui.py", "launch.py"}

// Detect reads the top-level files of app_dir (the conventional launch
// script names plus every other .py file there; subdirectories are not
// searched) looking for files containing a recognized launch call.
func (g *Integrator) Detect(ctx context.Context, appDir string) (IntegrationPlan, error) {
	plan := IntegrationPlan{AppDir: appDir}

	candidates := make([]string, 0, len(candidateScriptNames))
	for _, name := range candidateScriptNames {
		candidates = append(candidates, filepath.Join(appDir, name))
	}
	entries, err := os.ReadDir(appDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".py") {
				continue
			}
			candidates = append(candidates, filepath.Join(appDir, e.Name()))
		}
	}

	seen := map[string]bool{}
	for _, path := range candidates {
		if seen[path] {
			continue
		}
		seen[path] = true
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if launchCallPattern.Match(raw) {
			plan.Files = append(plan.Files, path)
		}
	}
	return plan, nil
}

// Enable backs up each target file, rewrites its launch-call argument
// list to inject (or flip on) a sharing keyword, and records the edit.
// A failure on one file leaves successfully edited files and their
// backups intact, plus a partial IntegrationRecord, per §4.11's batch
// safety rule.
func (g *Integrator) Enable(ctx context.Context, plan IntegrationPlan) (*IntegrationRecord, error) {
	record := &IntegrationRecord{Plan: plan}

	for _, path := range plan.Files {
		edit := editRecord{Path: path}
		if err := g.enableOne(path, &edit); err != nil {
			edit.Error = err.Error()
		}
		record.Edits = append(record.Edits, edit)
	}
	return record, nil
}

func (g *Integrator) enableOne(path string, edit *editRecord) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "integrator", path, err)
	}

	backupPath := path + ".skiffd-bak"
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "integrator", backupPath, err)
	}
	edit.BackupPath = backupPath

	rewritten := launchCallPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := launchCallPattern.FindSubmatch(match)
		call, args := string(groups[1]), string(groups[2])

		trimmedArgs := strings.TrimSpace(args)
		switch {
		case trimmedArgs == "":
			// No arguments: add a single keyword that enables sharing.
			return []byte(fmt.Sprintf("%s(share=True)", call))
		case shareKeywordPattern.MatchString(trimmedArgs):
			// Existing keyword: flip it to enabled.
			newArgs := shareKeywordPattern.ReplaceAllString(trimmedArgs, "share=True")
			return []byte(fmt.Sprintf("%s(%s)", call, newArgs))
		default:
			// Arguments present, no sharing keyword: append it.
			return []byte(fmt.Sprintf("%s(%s, share=True)", call, trimmedArgs))
		}
	})

	if err := atomicReplace(path, rewritten); err != nil {
		return err
	}
	edit.Edited = true
	return nil
}

// Disable restores every edited file from its backup, byte-for-byte.
func (g *Integrator) Disable(ctx context.Context, record *IntegrationRecord) error {
	var firstErr error
	for _, edit := range record.Edits {
		if !edit.Edited || edit.BackupPath == "" {
			continue
		}
		raw, err := os.ReadFile(edit.BackupPath)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := atomicReplace(edit.Path, raw); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = os.Remove(edit.BackupPath)
	}
	return firstErr
}

// atomicReplace writes data to a temp file beside path and renames it
// over path, so a crash mid-write leaves either the original or the
// fully-written replacement, never a truncated file.
func atomicReplace(path string, data []byte) error {
	tmp := path + ".tmp-" + fmt.Sprint(time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return skifferrors.New(skifferrors.KindFilesystemPermission, "integrator", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return skifferrors.New(skifferrors.KindFilesystemPermission, "integrator", path, err)
	}
	return nil
}
