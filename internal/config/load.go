package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// EnvFileLoaded reports whether Config.EnvFile was found and read.
	EnvFileLoaded bool
}

// Load resolves, reads, and parses the config file, loads the env file,
// applies environment overrides, and validates the result.
func Load(explicitPath string) (Loaded, error) {
	return LoadWith(explicitPath, os.LookupEnv)
}

// LoadWith is Load with an injectable environment lookup. The env file still
// populates the process environment.
func LoadWith(explicitPath string, lookup Lookup) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}

	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, err := decode(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		loaded.Config = cfg
		loaded.Warnings = append(loaded.Warnings, warnings...)
		loaded.Exists = true
	}

	envLoaded, err := LoadEnvFile(loaded.Config.EnvFile)
	if err != nil {
		return Loaded{}, err
	}
	loaded.EnvFileLoaded = envLoaded

	loaded.Warnings = append(loaded.Warnings, ApplyEnv(&loaded.Config, lookup)...)

	validated, err := Validate(loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("validate config %q: %w", resolvedPath, err)
	}
	loaded.Warnings = append(loaded.Warnings, validated...)
	return loaded, nil
}
