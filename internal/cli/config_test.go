package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sierra/pkg/sierra"
)

func newTestViperConfig(t *testing.T, args []string, dir string) Config {
	t.Helper()

	fs := pflag.NewFlagSet("sierra", pflag.ContinueOnError)
	registerFlags(fs)
	require.NoError(t, fs.Parse(args))

	v, err := newViper(fs)
	require.NoError(t, err)
	require.NoError(t, loadDotEnv(v, func() (string, error) { return dir, nil }))
	return configFrom(v)
}

func writeDotEnv(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))
	return dir
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := newTestViperConfig(t, nil, t.TempDir())

		require.Equal(t, sierra.DefaultAPIVersion, c.APIVersion)
		require.Equal(t, sierra.DefaultAgent, c.Agent)
		require.Equal(t, sierra.DefaultTimeout, c.Timeout())
		require.Zero(t, c.Delay)
		require.Equal(t, "warn", c.LogLevel)
		require.Equal(t, "text", c.LogFormat)
		require.Empty(t, c.Host, "host has no default")
	})

	t.Run("dot env", func(t *testing.T) {
		dir := writeDotEnv(t, `
SIERRA_HOST=https://catalog.example.org
SIERRA_CLIENT_ID=from-dotenv
SIERRA_CLIENT_SECRET=secret
SIERRA_READ_TIMEOUT=10s
SIERRA_DELAY=250ms
UNRELATED=ignored
`)
		c := newTestViperConfig(t, nil, dir)

		require.Equal(t, "https://catalog.example.org", c.Host)
		require.Equal(t, "from-dotenv", c.ClientID)
		require.Equal(t, "secret", c.ClientSecret)
		require.Equal(t, 10*time.Second, c.ReadTimeout)
		require.Equal(t, 250*time.Millisecond, c.Delay)
		require.NoError(t, c.Validate())
	})

	t.Run("environment beats dot env", func(t *testing.T) {
		t.Setenv("SIERRA_CLIENT_ID", "from-env")
		t.Setenv("SIERRA_API_VERSION", "v5")
		dir := writeDotEnv(t, "SIERRA_CLIENT_ID=from-dotenv\n")

		c := newTestViperConfig(t, nil, dir)
		require.Equal(t, "from-env", c.ClientID)
		require.Equal(t, "v5", c.APIVersion)
	})

	t.Run("flags beat environment", func(t *testing.T) {
		t.Setenv("SIERRA_CLIENT_ID", "from-env")

		c := newTestViperConfig(t, []string{
			"--client-id", "from-flag",
			"--connect-timeout", "1s",
			"--log-level", "DEBUG",
		}, t.TempDir())
		require.Equal(t, "from-flag", c.ClientID)
		require.Equal(t, time.Second, c.ConnectTimeout)
		require.Equal(t, "debug", c.LogLevel)
	})

	t.Run("unreadable working directory", func(t *testing.T) {
		fs := pflag.NewFlagSet("sierra", pflag.ContinueOnError)
		registerFlags(fs)
		v, err := newViper(fs)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = loadDotEnv(v, func() (string, error) { return "", boom })
		require.ErrorIs(t, err, boom)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Host:         "https://catalog.example.org",
			ClientID:     "id",
			ClientSecret: "secret",
			APIVersion:   "v6",
			LogLevel:     "info",
			LogFormat:    "json",
		}
	}

	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	cases := map[string]func(*Config){
		"missing host":       func(c *Config) { c.Host = "" },
		"host not a url":     func(c *Config) { c.Host = "catalog" },
		"missing client id":  func(c *Config) { c.ClientID = "" },
		"missing secret":     func(c *Config) { c.ClientSecret = "" },
		"missing version":    func(c *Config) { c.APIVersion = "" },
		"negative delay":     func(c *Config) { c.Delay = -time.Second },
		"unknown log level":  func(c *Config) { c.LogLevel = "loud" },
		"unknown log format": func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			require.ErrorContains(t, c.Validate(), "invalid configuration")
		})
	}
}
