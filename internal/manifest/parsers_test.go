package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCondaEnvironmentExtractsDependenciesAndPipBlock(t *testing.T) {
	raw := []byte(`
dependencies:
  - python=3.10
  - numpy>=1.24
  - pip:
      - gradio==4.0
`)
	parsed := parseCondaEnvironment("environment.yml", raw)
	assert.True(t, parsed.HasDevSection)
	assert.Len(t, parsed.Items, 2)
}

func TestParseNodePackageCollectsAllDependencySections(t *testing.T) {
	raw := []byte(`{
  "dependencies": {"react": "^18.0.0"},
  "devDependencies": {"eslint": "^8.0.0"}
}`)
	parsed := parseNodePackage("package.json", raw)
	assert.Len(t, parsed.Items, 2)
	assert.True(t, parsed.HasDevSection)
}

func TestParseNodePackageIgnoresNonPackageJSONFilenames(t *testing.T) {
	parsed := parseNodePackage("yarn.lock", []byte("anything"))
	assert.Empty(t, parsed.Items)
}

func TestParsePythonSetupExtractsInstallRequires(t *testing.T) {
	raw := []byte(`
from setuptools import setup
setup(
    name="demo",
    install_requires=["flask>=2.0", "requests"],
)
`)
	parsed := parsePythonSetup("setup.py", raw)
	assert.Len(t, parsed.Items, 2)
}

func TestParsePyprojectTomlExtractsDependencies(t *testing.T) {
	raw := []byte(`
[project]
name = "demo"
dependencies = [
    "fastapi>=0.100",
    "uvicorn",
]
`)
	parsed := parsePythonSetup("pyproject.toml", raw)
	assert.Len(t, parsed.Items, 2)
}

func TestParseLockfileRecordsPresenceOnly(t *testing.T) {
	parsed := parseLockfile("poetry.lock", []byte("some lock contents"))
	assert.True(t, parsed.HasVersionPins)
	assert.Empty(t, parsed.Items)
}

func TestSplitOnFirstOperatorPicksEarliestMatch(t *testing.T) {
	name, spec := splitOnFirstOperator("torch>=2.0,<3.0", pipOperators)
	assert.Equal(t, "torch", name)
	assert.Equal(t, ">=2.0,<3.0", spec)
}

func TestSplitOnFirstOperatorNoOperatorReturnsWholeLine(t *testing.T) {
	name, spec := splitOnFirstOperator("flask", pipOperators)
	assert.Equal(t, "flask", name)
	assert.Empty(t, spec)
}
