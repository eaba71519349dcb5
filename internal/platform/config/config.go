package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	dErrors "signup-api/pkg/domain-errors"
)

// EnvPrefix namespaces every environment variable read by the service.
const EnvPrefix = "SIGNUP_"

// DefaultDomainSourceURL is the published list of UK public sector email domains.
const DefaultDomainSourceURL = "https://raw.githubusercontent.com/govuk-digital-backbone/ukps-domains/main/data/user_domains.json"

// Server captures process level settings.
type Server struct {
	Addr           string        `koanf:"addr"`
	LogLevel       string        `koanf:"log_level"`
	Environment    string        `koanf:"environment"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Telemetry selects where spans are exported. Tracing stays local to the
// process when OTLPEndpoint is empty.
type Telemetry struct {
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Identity holds the cross-account provisioning settings. All fields are
// required; they come from the deployment environment, never from user input.
type Identity struct {
	IdentityStoreID   string        `koanf:"identity_store_id"`
	GroupID           string        `koanf:"group_id"`
	RoleARN           string        `koanf:"role_arn"`
	Region            string        `koanf:"region"`
	ExternalID        string        `koanf:"external_id"`
	DirectoryTimeout  time.Duration `koanf:"directory_timeout"`
	CredentialTimeout time.Duration `koanf:"credential_timeout"`
}

// Signup holds the public API settings.
type Signup struct {
	DomainSourceURL  string `koanf:"domain_source_url"`
	LoginRedirectURL string `koanf:"login_redirect_url"`
}

// Config is the full service configuration.
type Config struct {
	Server    `koanf:",squash"`
	Identity  `koanf:",squash"`
	Signup    `koanf:",squash"`
	Telemetry `koanf:",squash"`
}

func defaults() map[string]any {
	return map[string]any{
		"addr":               ":8080",
		"log_level":          "info",
		"environment":        "development",
		"request_timeout":    "30s",
		"domain_source_url":  DefaultDomainSourceURL,
		"login_redirect_url": "/api/auth/login",
		"directory_timeout":  "5s",
		"credential_timeout": "5s",
	}
}

// Load builds a Config from, lowest priority first: defaults, the YAML file named
// by SIGNUP_CONFIG_FILE, AWS_REGION, and SIGNUP_* environment variables
// (SIGNUP_ROLE_ARN -> role_arn). Empty variables are ignored.
//
// Missing identity settings are not an error here; Identity.Validate is checked
// on every provisioning call so each signup fails deterministically instead.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(EnvPrefix + "CONFIG_FILE"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	awsRegion := env.ProviderWithValue("AWS_REGION", ".", func(key, value string) (string, any) {
		if key != "AWS_REGION" || value == "" {
			return "", nil
		}
		return "region", value
	})
	if err := k.Load(awsRegion, nil); err != nil {
		return nil, fmt.Errorf("load AWS_REGION: %w", err)
	}

	signupEnv := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
	})
	if err := k.Load(signupEnv, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing required identity setting in one error.
func (c Identity) Validate() error {
	var missing []string
	if c.IdentityStoreID == "" {
		missing = append(missing, "identity_store_id")
	}
	if c.GroupID == "" {
		missing = append(missing, "group_id")
	}
	if c.RoleARN == "" {
		missing = append(missing, "role_arn")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if c.ExternalID == "" {
		missing = append(missing, "external_id")
	}
	if len(missing) > 0 {
		return dErrors.New(dErrors.CodeConfiguration, "missing configuration: "+strings.Join(missing, ", "))
	}
	return nil
}
