package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Load reads a settings file, picking the decoder from the extension.
func Load(path string) (Values, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return LoadTOML(path)
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return nil, eris.Errorf("config: unsupported file extension %q", ext)
	}
}

// LoadTOML reads and decodes a TOML settings file.
func LoadTOML(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read %s", path)
	}
	v, err := ParseTOML(data)
	if err != nil {
		return nil, eris.Wrapf(err, "config: %s", path)
	}
	return v, nil
}

// ParseTOML decodes TOML bytes into flattened Values.
func ParseTOML(data []byte) (Values, error) {
	m := map[string]any{}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "decode toml")
	}
	return Values(m).Flatten(), nil
}

// LoadYAML reads and decodes a YAML settings file.
func LoadYAML(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read %s", path)
	}
	v, err := ParseYAML(data)
	if err != nil {
		return nil, eris.Wrapf(err, "config: %s", path)
	}
	return v, nil
}

// ParseYAML decodes YAML bytes into flattened Values.
func ParseYAML(data []byte) (Values, error) {
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "decode yaml")
	}
	return Values(m).Flatten(), nil
}
