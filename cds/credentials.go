package cds

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by LoadCredentials.
const (
	EnvURL = "CDSAPI_URL"
	EnvKey = "CDSAPI_KEY"
	EnvRC  = "CDSAPI_RC"
)

// DefaultURL is the current Climate Data Store API endpoint, used when
// only a key is configured.
const DefaultURL = "https://cds.climate.copernicus.eu/api"

// ErrNoCredentials indicates neither the environment nor the rc file
// supplied an endpoint and key.
var ErrNoCredentials = errors.New("no CDS credentials found")

// Credentials identify the account used for retrievals.
type Credentials struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// Validate checks both fields are present. A key is either a personal
// access token or, for the legacy service, <uid>:<secret>.
func (c Credentials) Validate() error {
	if c.URL == "" || c.Key == "" {
		return ErrNoCredentials
	}
	if uid, secret, ok := strings.Cut(c.Key, ":"); ok && (uid == "" || secret == "") {
		return errors.New("invalid CDS key: expected a token or <uid>:<api-key>")
	}
	if strings.ContainsAny(c.Key, " \t\n") {
		return errors.New("invalid CDS key: contains whitespace")
	}
	return nil
}

// Legacy reports whether the key targets the legacy task API.
func (c Credentials) Legacy() bool {
	return strings.Contains(c.Key, ":")
}

// authorize sets the authentication header matching the key.
func (c Credentials) authorize(req *http.Request) {
	if uid, secret, ok := strings.Cut(c.Key, ":"); ok {
		req.SetBasicAuth(uid, secret)
		return
	}
	req.Header.Set("PRIVATE-TOKEN", c.Key)
}

// LoadCredentials resolves credentials from CDSAPI_URL and CDSAPI_KEY,
// falling back to the rc file named by CDSAPI_RC or ~/.cdsapirc.
// Environment values win field by field. A key with no URL anywhere
// gets DefaultURL.
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		URL: os.Getenv(EnvURL),
		Key: os.Getenv(EnvKey),
	}
	if creds.URL != "" && creds.Key != "" {
		return creds, creds.Validate()
	}

	path := os.Getenv(EnvRC)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return creds, fmt.Errorf("%w: %w", ErrNoCredentials, err)
		}
		path = filepath.Join(home, ".cdsapirc")
	}

	rc, err := ReadRC(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && creds.Key == "":
		return creds, fmt.Errorf("%w: set %s or create %s", ErrNoCredentials, EnvKey, path)
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return creds, err
	}
	if creds.URL == "" {
		creds.URL = rc.URL
	}
	if creds.Key == "" {
		creds.Key = rc.Key
	}
	if creds.URL == "" && creds.Key != "" {
		creds.URL = DefaultURL
	}
	return creds, creds.Validate()
}

// ReadRC parses an rc file of "url:" and "key:" lines. Unknown keys
// such as "verify:" are ignored.
func ReadRC(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	c.URL = strings.TrimSpace(c.URL)
	c.Key = strings.TrimSpace(c.Key)
	return c, nil
}
