package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credentials holds vendor API keys resolved once at startup
type Credentials struct {
	keys map[string]string
}

// NewCredentials builds a credential set from source -> key pairs
func NewCredentials(keys map[string]string) *Credentials {
	c := &Credentials{keys: make(map[string]string, len(keys))}
	for k, v := range keys {
		c.keys[k] = v
	}
	return c
}

// ResolveCredentials looks up the key of every configured provider. The
// environment variable named by KeyEnv wins; otherwise the key named KeyName
// is read from "<TokenDir>/<Source>.txt". Providers without a key are left
// out; asking for them later fails.
func ResolveCredentials(cfg ProvidersConfig) (*Credentials, error) {
	creds := &Credentials{keys: make(map[string]string)}

	for _, p := range []ProviderConfig{cfg.Polygon, cfg.FRED} {
		if p.Source == "" {
			continue
		}
		if p.KeyEnv != "" {
			if key := os.Getenv(p.KeyEnv); key != "" {
				creds.keys[p.Source] = key
				continue
			}
		}

		tokenFile := filepath.Join(cfg.TokenDir, p.Source+".txt")
		if !FileExists(tokenFile) {
			continue
		}
		table, err := LoadTokenFile(tokenFile)
		if err != nil {
			return nil, err
		}
		if key, ok := table[p.KeyName]; ok {
			creds.keys[p.Source] = key
		}
	}

	return creds, nil
}

// Key returns the API key of a provider source
func (c *Credentials) Key(source string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no credentials loaded")
	}
	key, ok := c.keys[source]
	if !ok || key == "" {
		return "", fmt.Errorf("no API key configured for %s", source)
	}
	return key, nil
}

// Has reports whether a key is available for source
func (c *Credentials) Has(source string) bool {
	_, err := c.Key(source)
	return err == nil
}

// LoadTokenFile parses a name -> key lookup table of "name:key" lines.
// Blank lines and lines starting with '#' are skipped.
func LoadTokenFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file %s: %w", path, err)
	}
	defer file.Close()

	table := make(map[string]string)
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		name, key, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("token file %s line %d: expected name:key", path, line)
		}
		table[strings.TrimSpace(name)] = strings.TrimSpace(key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", path, err)
	}

	return table, nil
}
