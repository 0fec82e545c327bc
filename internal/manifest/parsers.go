package manifest

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/skiffhost/skiffd/internal/models"

	"gopkg.in/yaml.v3"
)

var pipOperators = []string{"==", ">=", "<=", "!=", "~=", ">", "<"}

// parsePipRequirements strips comments, splits each line on the first
// comparison operator, and ignores lines beginning with a dash (pip
// options like -r/-e), per §4.5's parsing rule.
func parsePipRequirements(_ string, raw []byte) models.ParsedManifest {
	var items []models.DependencyItem
	pinned := false

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		name, spec := splitOnFirstOperator(line, pipOperators)
		if spec != "" {
			pinned = true
		}
		items = append(items, models.DependencyItem{Name: strings.TrimSpace(name), VersionSpec: spec})
	}

	return models.ParsedManifest{Items: items, HasVersionPins: pinned}
}

func splitOnFirstOperator(line string, ops []string) (name, spec string) {
	bestIdx := -1
	for _, op := range ops {
		if idx := strings.Index(line, op); idx >= 0 && (bestIdx == -1 || idx < bestIdx) {
			bestIdx = idx
		}
	}
	if bestIdx == -1 {
		return line, ""
	}
	return line[:bestIdx], line[bestIdx:]
}

// condaEnv is the subset of a conda environment.yml this scanner reads.
type condaEnv struct {
	Dependencies []interface{} `yaml:"dependencies"`
}

// parseCondaEnvironment reads the dependencies list; a bare pip: child
// block is flagged via HasDevSection (repurposed here as "has a nested
// pip section") but not parsed, per §4.5.
func parseCondaEnvironment(_ string, raw []byte) models.ParsedManifest {
	var env condaEnv
	if err := yaml.Unmarshal(raw, &env); err != nil {
		return models.ParsedManifest{ParseError: err.Error()}
	}

	var items []models.DependencyItem
	hasPipBlock := false
	for _, dep := range env.Dependencies {
		switch v := dep.(type) {
		case string:
			name, spec := splitOnFirstOperator(v, []string{"=", ">=", "<=", ">", "<"})
			items = append(items, models.DependencyItem{Name: strings.TrimSpace(name), VersionSpec: spec})
		case map[string]interface{}:
			if _, ok := v["pip"]; ok {
				hasPipBlock = true
			}
		}
	}

	return models.ParsedManifest{Items: items, HasDevSection: hasPipBlock}
}

// nodePackageJSON is the subset of package.json this scanner reads.
type nodePackageJSON struct {
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// parseNodePackage reads dependencies/devDependencies/peerDependencies,
// per §4.5. Lockfiles (package-lock.json, yarn.lock, pnpm-lock.yaml) are
// recorded but not deeply parsed — their job is to corroborate that a
// node-package manifest exists, not to re-derive it.
func parseNodePackage(path string, raw []byte) models.ParsedManifest {
	if !strings.HasSuffix(strings.ToLower(path), "package.json") {
		return models.ParsedManifest{}
	}

	var pkg nodePackageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return models.ParsedManifest{ParseError: err.Error()}
	}

	var items []models.DependencyItem
	for name, spec := range pkg.Dependencies {
		items = append(items, models.DependencyItem{Name: name, VersionSpec: spec})
	}
	for name, spec := range pkg.DevDependencies {
		items = append(items, models.DependencyItem{Name: name, VersionSpec: spec})
	}
	for name, spec := range pkg.PeerDependencies {
		items = append(items, models.DependencyItem{Name: name, VersionSpec: spec})
	}

	return models.ParsedManifest{
		Items:          items,
		HasVersionPins: len(pkg.Dependencies)+len(pkg.PeerDependencies) > 0,
		HasDevSection:  len(pkg.DevDependencies) > 0,
	}
}

var installRequiresRe = regexp.MustCompile(`install_requires\s*=\s*\[([^\]]*)\]`)
var quotedItemRe = regexp.MustCompile(`['"]([^'"]+)['"]`)

// parsePythonSetup best-effort regex-extracts install_requires without
// executing the file, per §4.5's explicit "do not execute the file"
// rule.
func parsePythonSetup(path string, raw []byte) models.ParsedManifest {
	if strings.HasSuffix(strings.ToLower(path), "pyproject.toml") {
		return parsePyprojectToml(raw)
	}

	match := installRequiresRe.FindSubmatch(raw)
	if match == nil {
		return models.ParsedManifest{}
	}

	var items []models.DependencyItem
	for _, m := range quotedItemRe.FindAllSubmatch(match[1], -1) {
		name, spec := splitOnFirstOperator(string(m[1]), pipOperators)
		items = append(items, models.DependencyItem{Name: strings.TrimSpace(name), VersionSpec: spec})
	}
	return models.ParsedManifest{Items: items}
}

func parsePyprojectToml(raw []byte) models.ParsedManifest {
	// Minimal best-effort extraction: look for a `dependencies = [...]`
	// array under [project], matching the same regex style used for
	// setup.py rather than pulling in a TOML parser for one field.
	match := regexp.MustCompile(`(?s)\[project\].*?dependencies\s*=\s*\[([^\]]*)\]`).FindSubmatch(raw)
	if match == nil {
		return models.ParsedManifest{}
	}
	var items []models.DependencyItem
	for _, m := range quotedItemRe.FindAllSubmatch(match[1], -1) {
		name, spec := splitOnFirstOperator(string(m[1]), pipOperators)
		items = append(items, models.DependencyItem{Name: strings.TrimSpace(name), VersionSpec: spec})
	}
	return models.ParsedManifest{Items: items}
}

// parseLockfile records the lockfile's presence without attempting to
// re-derive the full dependency graph it encodes.
func parseLockfile(_ string, raw []byte) models.ParsedManifest {
	return models.ParsedManifest{HasVersionPins: len(raw) > 0}
}

// parsePassthrough is used for containerfiles and build-system files,
// which are recognized but not decomposed into items.
func parsePassthrough(_ string, _ []byte) models.ParsedManifest {
	return models.ParsedManifest{}
}

