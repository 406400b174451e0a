package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/aussiebroadwan/sierra/pkg/sierra"
)

// EnvPrefix namespaces every environment variable the CLI reads,
// e.g. SIERRA_CLIENT_ID.
const EnvPrefix = "SIERRA"

// Config keys, shared by flags, environment and .env files.
const (
	keyHost           = "host"
	keyClientID       = "client-id"
	keyClientSecret   = "client-secret"
	keyAPIVersion     = "api-version"
	keyAgent          = "agent"
	keyConnectTimeout = "connect-timeout"
	keyReadTimeout    = "read-timeout"
	keyDelay          = "delay"
	keyLogLevel       = "log-level"
	keyLogFormat      = "log-format"
	keyEnv            = "env"
)

type Config struct {
	Host         string `validate:"required,url"`
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	APIVersion   string `validate:"required"`
	Agent        string

	ConnectTimeout time.Duration `validate:"gte=0"`
	ReadTimeout    time.Duration `validate:"gte=0"`
	Delay          time.Duration `validate:"gte=0"`

	LogLevel  string `validate:"oneof=debug info warn warning error"`
	LogFormat string `validate:"oneof=json text"`
	Env       string
}

var validate = validator.New()

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Timeout converts the configured phases into a sierra.Timeout.
func (c *Config) Timeout() sierra.Timeout {
	return sierra.Timeout{Connect: c.ConnectTimeout, Read: c.ReadTimeout}
}

// registerFlags declares the persistent configuration flags. Defaults live
// in viper so an unset flag never masks the environment.
func registerFlags(fs *pflag.FlagSet) {
	fs.String(keyHost, "", "Sierra host URL, e.g. https://catalog.example.org")
	fs.String(keyClientID, "", "API client id")
	fs.String(keyClientSecret, "", "API client secret")
	fs.String(keyAPIVersion, sierra.DefaultAPIVersion, "Sierra API version")
	fs.String(keyAgent, sierra.DefaultAgent, "User-Agent sent with every request")
	fs.Duration(keyConnectTimeout, sierra.DefaultTimeout.Connect, "Connect timeout")
	fs.Duration(keyReadTimeout, sierra.DefaultTimeout.Read, "Read timeout")
	fs.Duration(keyDelay, 0, "Pause before every request")
	fs.String(keyLogLevel, "warn", "Log level (debug, info, warn, error)")
	fs.String(keyLogFormat, "text", "Log format (json, text)")
	fs.String(keyEnv, "prod", "Environment (dev, prod)")
}

// newViper layers configuration: flag defaults, then .env, then the
// process environment, then flags set on the command line.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// loadDotEnv reads .env from the working directory into v as defaults, so
// the real environment and flags still win. A missing file is not an error.
func loadDotEnv(v *viper.Viper, getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to read .env: %w", err)
	}

	prefix := EnvPrefix + "_"
	for name, value := range envMap {
		if !strings.HasPrefix(name, prefix) || value == "" {
			continue
		}
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, prefix)), "_", "-")
		v.SetDefault(key, value)
	}
	return nil
}

// configFrom resolves every key through v.
func configFrom(v *viper.Viper) Config {
	return Config{
		Host:           strings.TrimSpace(v.GetString(keyHost)),
		ClientID:       v.GetString(keyClientID),
		ClientSecret:   v.GetString(keyClientSecret),
		APIVersion:     v.GetString(keyAPIVersion),
		Agent:          v.GetString(keyAgent),
		ConnectTimeout: v.GetDuration(keyConnectTimeout),
		ReadTimeout:    v.GetDuration(keyReadTimeout),
		Delay:          v.GetDuration(keyDelay),
		LogLevel:       strings.ToLower(v.GetString(keyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(keyLogFormat)),
		Env:            v.GetString(keyEnv),
	}
}
