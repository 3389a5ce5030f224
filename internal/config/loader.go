// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Resolve _SECRET_FILE pointer variables through the SecretProvider and
//     inject the values back into the environment.
//  4. Use envconfig to process struct tags and populate the Config struct.
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// secretFileSuffix marks a variable whose value is a path to the secret.
// DATABASE_URL_SECRET_FILE=/run/secrets/db populates DATABASE_URL. The suffix
// is namespaced so OS and SDK variables such as SSL_CERT_FILE or
// AWS_WEB_IDENTITY_TOKEN_FILE are never read as secrets.
const secretFileSuffix = "_SECRET_FILE"

// loaderDeps holds the injectable dependencies for the loader so tests do not
// mutate global state beyond t.Setenv.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig loads and validates the configuration. provider may be nil when
// no _SECRET_FILE variables are expected.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv does not override variables that are already set.
	_ = deps.dotenv()

	if err := resolveSecretFiles(provider, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation plus the cross-section rules envconfig tags
// cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.Alerts.WebhookURL != "" && !cfg.Alerts.WebhookSecret.IsSet() && cfg.Environment == "prod" {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "ALERT_WEBHOOK_SECRET is required when ALERT_WEBHOOK_URL is set in prod",
		}
	}
	return nil
}

// resolveSecretFiles scans the environment for variables ending in
// _SECRET_FILE, reads the referenced secrets via provider, and injects them
// under the target name. A target that is already set wins over its pointer.
// Several targets may share one file.
func resolveSecretFiles(provider SecretProvider, deps loaderDeps) error {
	refToTargets := make(map[string][]string)
	var refs []string

	for _, entry := range deps.environ() {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		key, ref := entry[:eq], entry[eq+1:]
		if !strings.HasSuffix(key, secretFileSuffix) || ref == "" {
			continue
		}
		target := strings.TrimSuffix(key, secretFileSuffix)
		if target == "" {
			continue
		}
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}
		if _, seen := refToTargets[ref]; !seen {
			refs = append(refs, ref)
		}
		refToTargets[ref] = append(refToTargets[ref], target)
	}

	if len(refs) == 0 {
		return nil
	}
	if provider == nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("a SecretProvider is required to resolve %d secret references", len(refs)),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resolved, err := provider.Resolve(ctx, refs)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d secret references", len(refs)),
			Err:     err,
		}
	}

	var missing []string
	for _, ref := range refs {
		value, ok := resolved[ref]
		if !ok {
			missing = append(missing, refToTargets[ref]...)
			continue
		}
		for _, target := range refToTargets[ref] {
			if err := deps.setEnv(target, value); err != nil {
				return &ConfigError{
					Type:    ErrSecretResolution,
					Message: fmt.Sprintf("failed to set resolved value for %s", target),
					Err:     err,
				}
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("secrets not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
