// Package cli implements the sierra command line tool.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sierra/pkg/sierra"
	"github.com/aussiebroadwan/sierra/pkg/slogx"
)

// skipConfig marks commands that run without credentials.
const skipConfig = "skip-config"

type app struct {
	version string
	getwd   func() (string, error)

	cfg    Config
	logger *slog.Logger

	// transport overrides the HTTP transport, for tests.
	transport http.RoundTripper
}

// Option configures NewRootCommand.
type Option func(*app)

// WithGetwd replaces the lookup of the directory .env is read from.
func WithGetwd(getwd func() (string, error)) Option {
	return func(a *app) { a.getwd = getwd }
}

// WithRoundTripper sends every request through rt.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(a *app) { a.transport = rt }
}

// NewRootCommand builds the sierra command tree.
func NewRootCommand(version string, opts ...Option) *cobra.Command {
	a := &app{version: version, getwd: os.Getwd}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "sierra",
		Short: "Sierra ILS API client",
		Long: `Command line client for the Sierra ILS REST API.

Settings are read from flags, then SIERRA_* environment variables, then a
.env file in the working directory. For example:

  SIERRA_HOST=https://catalog.example.org
  SIERRA_CLIENT_ID=...
  SIERRA_CLIENT_SECRET=...`,
		SilenceUsage:      true,
		PersistentPreRunE: a.configure,
	}
	registerFlags(root.PersistentFlags())

	root.AddCommand(
		a.tokenCommand(),
		a.bibCommand(),
		a.itemCommand(),
		a.itemsCommand(),
		a.versionCommand(),
	)
	return root
}

// configure resolves the layered configuration and sets up logging.
func (a *app) configure(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	if err := loadDotEnv(v, a.getwd); err != nil {
		return err
	}

	a.cfg = configFrom(v)

	a.logger = slogx.New(slogx.Config{
		Service: "sierra",
		Version: a.version,
		Client:  a.cfg.Agent,
		Env:     a.cfg.Env,
		Level:   a.cfg.LogLevel,
		Format:  a.cfg.LogFormat,
		Output:  cmd.ErrOrStderr(),
	})

	if cmd.Annotations[skipConfig] != "" {
		return nil
	}
	return a.cfg.Validate()
}

// withSession authenticates and runs fn with a session that is closed
// afterwards.
func (a *app) withSession(ctx context.Context, fn func(context.Context, *sierra.Session) error) error {
	token, err := a.newToken(ctx)
	if err != nil {
		return err
	}

	return sierra.WithSession(slogx.WithContext(ctx, a.logger), token, fn,
		sierra.WithSessionTimeout(a.cfg.Timeout()),
		sierra.WithDelay(a.cfg.Delay),
		sierra.WithSessionLogger(a.logger),
	)
}

func (a *app) newToken(ctx context.Context) (*sierra.Token, error) {
	client := sierra.NewHTTPClient(a.cfg.Timeout())
	base := client.Transport
	if a.transport != nil {
		base = a.transport
	}
	client.Transport = slogx.Transport(base, a.logger)

	return sierra.NewToken(slogx.WithContext(ctx, a.logger),
		a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.Host,
		sierra.WithAPIVersion(a.cfg.APIVersion),
		sierra.WithAgent(a.cfg.Agent),
		sierra.WithTimeout(a.cfg.Timeout()),
		sierra.WithHTTPClient(client),
		sierra.WithLogger(a.logger),
	)
}

// printResponse writes the body, indented when it is JSON.
func printResponse(w io.Writer, resp *sierra.Response) error {
	if len(resp.Body) == 0 {
		_, err := fmt.Fprintln(w, resp.Status)
		return err
	}

	var out bytes.Buffer
	if json.Valid(resp.Body) && json.Indent(&out, resp.Body, "", "  ") == nil {
		out.WriteByte('\n')
		_, err := w.Write(out.Bytes())
		return err
	}

	_, err := w.Write(resp.Body)
	return err
}
