// Package config loads and validates the sync configuration file.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/asanatap/internal/asana"
	"github.com/roach88/asanatap/internal/auth"
	"github.com/roach88/asanatap/internal/engine"
)

//go:embed schema.cue
var schemaSource string

// DefaultDatabase is the state database used when none is configured.
const DefaultDatabase = "asanatap.db"

// Environment variables that override the auth section.
const (
	EnvAccessToken  = "ASANA_ACCESS_TOKEN"
	EnvClientID     = "ASANA_CLIENT_ID"
	EnvClientSecret = "ASANA_CLIENT_SECRET"
	EnvRefreshToken = "ASANA_REFRESH_TOKEN"
)

// Config is the decoded configuration file.
//
// Durations and the start date stay strings as written; the typed
// accessors parse them after Validate has accepted the document.
type Config struct {
	StartDate string   `yaml:"start_date" json:"start_date,omitempty"`
	Streams   []string `yaml:"streams" json:"streams,omitempty"`
	Database  string   `yaml:"database" json:"database,omitempty"`
	Auth      Auth     `yaml:"auth" json:"auth"`
	API       API      `yaml:"api" json:"api"`
	Watchdog  Watchdog `yaml:"watchdog" json:"watchdog"`
}

// Auth holds either a personal access token or an OAuth refresh grant.
type Auth struct {
	AccessToken  string `yaml:"access_token" json:"access_token,omitempty"`
	ClientID     string `yaml:"client_id" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret" json:"client_secret,omitempty"`
	RefreshToken string `yaml:"refresh_token" json:"refresh_token,omitempty"`
	RedirectURI  string `yaml:"redirect_uri" json:"redirect_uri,omitempty"`
	TokenURL     string `yaml:"token_url" json:"token_url,omitempty"`
}

// API tunes the HTTP client.
type API struct {
	BaseURL  string `yaml:"base_url" json:"base_url,omitempty"`
	PageSize int    `yaml:"page_size" json:"page_size,omitempty"`
	Timeout  string `yaml:"timeout" json:"timeout,omitempty"`
}

// Watchdog sets the credential refresh budgets.
type Watchdog struct {
	MaxCalls int    `yaml:"max_calls" json:"max_calls,omitempty"`
	MaxAge   string `yaml:"max_age" json:"max_age,omitempty"`
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, applies overrides from getenv (which may
// be nil) and validates the result. Unknown keys are rejected.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	overrides := []struct {
		name string
		dst  *string
	}{
		{EnvAccessToken, &c.Auth.AccessToken},
		{EnvClientID, &c.Auth.ClientID},
		{EnvClientSecret, &c.Auth.ClientSecret},
		{EnvRefreshToken, &c.Auth.RefreshToken},
	}
	for _, o := range overrides {
		if v := getenv(o.name); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks the document against the embedded schema, then checks
// that some way to authenticate is usable. An access token takes
// precedence over the OAuth grant.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	doc := ctx.Encode(c)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return c.Auth.validate()
}

func (a Auth) validate() error {
	if a.AccessToken != "" {
		return nil
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"client_id", a.ClientID},
		{"client_secret", a.ClientSecret},
		{"refresh_token", a.RefreshToken},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 3 {
		return errors.New("invalid config: auth needs access_token or client_id, client_secret and refresh_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid config: auth missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// UsesOAuth reports whether the credential is refreshed via OAuth.
func (a Auth) UsesOAuth() bool {
	return a.AccessToken == ""
}

// Start returns the watermark of streams that were never committed.
func (c *Config) Start() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, c.StartDate)
	return t
}

// SelectedStreams resolves the configured stream subset in catalog
// order. only, when non-empty, narrows the selection further.
func (c *Config) SelectedStreams(only ...string) ([]engine.Stream, error) {
	want := map[string]bool{}
	for _, name := range c.Streams {
		want[name] = true
	}
	for _, name := range only {
		if _, ok := engine.Lookup(name); !ok {
			return nil, fmt.Errorf("unknown stream %q", name)
		}
		if len(c.Streams) > 0 && !want[name] {
			return nil, fmt.Errorf("stream %q is not enabled in config", name)
		}
	}

	selected := want
	if len(only) > 0 {
		selected = map[string]bool{}
		for _, name := range only {
			selected[name] = true
		}
	}

	var out []engine.Stream
	for _, s := range engine.Catalog() {
		if len(selected) == 0 || selected[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

// DatabasePath returns the state database path.
func (c *Config) DatabasePath() string {
	if c.Database == "" {
		return DefaultDatabase
	}
	return c.Database
}

// ClientConfig returns the Asana client settings.
func (c *Config) ClientConfig() asana.Config {
	return asana.Config{
		BaseURL:  c.API.BaseURL,
		PageSize: c.API.PageSize,
		Timeout:  parseDuration(c.API.Timeout),
	}
}

// WatchdogOptions returns the configured budgets. Unset values keep the
// watchdog defaults.
func (c *Config) WatchdogOptions() []engine.WatchdogOption {
	return []engine.WatchdogOption{
		engine.WithMaxCalls(c.Watchdog.MaxCalls),
		engine.WithMaxAge(parseDuration(c.Watchdog.MaxAge)),
	}
}

// Credential builds the process credential. httpClient is used for
// token requests and may be nil.
func (c *Config) Credential(httpClient *http.Client) (*auth.Credential, error) {
	if !c.Auth.UsesOAuth() {
		return auth.NewStatic(c.Auth.AccessToken), nil
	}
	return auth.NewOAuth(auth.OAuthConfig{
		ClientID:     c.Auth.ClientID,
		ClientSecret: c.Auth.ClientSecret,
		RefreshToken: c.Auth.RefreshToken,
		RedirectURL:  c.Auth.RedirectURI,
		TokenURL:     c.Auth.TokenURL,
		HTTPClient:   httpClient,
	})
}

// parseDuration returns 0 for empty or invalid input; Validate has
// already rejected invalid durations.
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := time.ParseDuration(s)
	return d
}
