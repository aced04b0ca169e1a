package environment

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/relentless-labs/specbmc/internal/perr"
	"gopkg.in/yaml.v3"
)

// DiscoverFile returns the path of a YAML environment file named
// "<stem>.yaml" next to programFile, or "" if none exists — spec.md §6
// "Auto-discovery of a YAML environment file ... unless --env is given".
func DiscoverFile(programFile string) string {
	dir := filepath.Dir(programFile)
	stem := strings.TrimSuffix(filepath.Base(programFile), filepath.Ext(programFile))
	candidate := filepath.Join(dir, stem+".yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// LoadFile reads and parses a YAML environment file into a copy of
// Defaults(), so that unset fields keep their default value exactly as
// original_source/src/environment.rs's `#[serde(default)]` fields do.
func LoadFile(path string) (*Environment, *perr.Error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Input("environment", "environment file %q could not be loaded: %v", path, err)
	}
	env := Defaults()
	if err := yaml.Unmarshal(data, env); err != nil {
		return nil, perr.Input("environment", "environment file %q is not valid YAML: %v", path, err)
	}
	return env, nil
}

// String renders the environment back to YAML, for `--show-env`.
func (e *Environment) String() string {
	data, err := yaml.Marshal(e)
	if err != nil {
		return "<environment: marshal error: " + err.Error() + ">"
	}
	return string(data)
}
