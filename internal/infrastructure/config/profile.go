package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Profile describes one terminal endpoint for the client.
type Profile struct {
	URL      string            `yaml:"url" toml:"url"`
	Extra    map[string]string `yaml:"extra" toml:"extra"`
	User     string            `yaml:"user" toml:"user"`
	Password string            `yaml:"password" toml:"password"`
}

// LoadProfile reads a YAML (.yaml, .yml) or TOML (.toml) profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	case ".toml":
		err = toml.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("unsupported profile format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}

	if p.URL == "" {
		return nil, fmt.Errorf("profile %s: url is required", path)
	}
	return &p, nil
}

// Apply overlays the profile onto client configuration.
func (p *Profile) Apply(cfg *ClientConfig) {
	cfg.URL = p.URL
	if p.User != "" {
		cfg.User = p.User
		cfg.Password = p.Password
	}
}
