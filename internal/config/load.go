package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Decode parses file content (format picked from path's extension) on top of
// Defaults. Unknown fields and trailing data are errors.
func Decode(path string, data []byte) (*Config, error) {
	cfg := Defaults()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config %s: trailing data", path)
		}
		return nil, err
	}
	return cfg, nil
}

// Load reads path (optional: "" means defaults only), then applies STOCKBOT_*
// environment overrides.
func Load(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if strings.TrimSpace(path) == "" {
		cfg = Defaults()
	} else {
		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, rerr
		}
		cfg, err = Decode(path, b)
		if err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("dotenv %s: %w", p, err)
		}
	}
	return nil
}
