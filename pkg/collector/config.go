package collector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PyprojectFile is the configuration file read from the collection root.
const PyprojectFile = "pyproject.toml"

// Pytest defaults for the ini options the collector understands.
var (
	DefaultPythonFiles     = []string{"test_*.py", "*_test.py"}
	DefaultPythonClasses   = []string{"Test"}
	DefaultPythonFunctions = []string{"test"}
)

// builtinMarkers are registered by pytest itself.
var builtinMarkers = map[string]bool{
	"filterwarnings": true,
	"parametrize":    true,
	"skip":           true,
	"skipif":         true,
	"tryfirst":       true,
	"trylast":        true,
	"usefixtures":    true,
	"xfail":          true,
}

// Config holds the pytest ini options that drive collection.
type Config struct {
	TestPaths       []string
	PythonFiles     []string
	PythonClasses   []string
	PythonFunctions []string
	NoRecurseDirs   []string
	// Markers are the registered marker names, descriptions stripped.
	Markers []string
}

// DefaultConfig returns the configuration pytest uses without ini options.
func DefaultConfig() *Config {
	return &Config{
		PythonFiles:     DefaultPythonFiles,
		PythonClasses:   DefaultPythonClasses,
		PythonFunctions: DefaultPythonFunctions,
	}
}

// LoadConfig reads [tool.pytest.ini_options] from root/pyproject.toml.
// A missing file or section yields DefaultConfig.
func LoadConfig(root string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(root, PyprojectFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", PyprojectFile, err)
	}

	var pyproject map[string]interface{}
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", PyprojectFile, err)
	}

	tool, _ := pyproject["tool"].(map[string]interface{})
	pytest, _ := tool["pytest"].(map[string]interface{})
	ini, ok := pytest["ini_options"].(map[string]interface{})
	if !ok {
		return cfg, nil
	}

	if v, ok := ini["testpaths"]; ok {
		cfg.TestPaths = stringList(v)
	}
	if v, ok := ini["python_files"]; ok {
		cfg.PythonFiles = stringList(v)
	}
	if v, ok := ini["python_classes"]; ok {
		cfg.PythonClasses = stringList(v)
	}
	if v, ok := ini["python_functions"]; ok {
		cfg.PythonFunctions = stringList(v)
	}
	if v, ok := ini["norecursedirs"]; ok {
		cfg.NoRecurseDirs = stringList(v)
	}
	if v, ok := ini["markers"]; ok {
		for _, line := range stringList(v) {
			if name := markerName(line); name != "" {
				cfg.Markers = append(cfg.Markers, name)
			}
		}
	}

	return cfg, nil
}

// stringList accepts an ini-style whitespace separated string or a TOML array.
func stringList(v interface{}) []string {
	switch v := v.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// markerName extracts "slow" from "slow: marks tests as slow" or "slow(reason)".
func markerName(line string) string {
	name := strings.TrimSpace(line)
	if i := strings.IndexAny(name, ":("); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// KnownMarker reports whether name is a builtin or registered marker.
// With no registered markers every marker is known.
func (c *Config) KnownMarker(name string) bool {
	if len(c.Markers) == 0 || builtinMarkers[name] {
		return true
	}
	for _, m := range c.Markers {
		if m == name {
			return true
		}
	}
	return false
}
