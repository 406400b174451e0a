package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/sierra/pkg/sierra"
)

// ============================================================================
// token
// ============================================================================

func (a *app) tokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Exchange the client credentials for an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.newToken(cmd.Context())
			if err != nil {
				return err
			}

			out := map[string]any{
				"access_token": token.AccessToken(),
				"expires_on":   token.ExpiresOn().Format(time.RFC3339),
				"base_url":     token.BaseURL(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

// ============================================================================
// bib
// ============================================================================

func (a *app) bibCommand() *cobra.Command {
	bib := &cobra.Command{
		Use:   "bib",
		Short: "Read and update bib records",
	}

	var fields []string
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a bib record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(ctx context.Context, s *sierra.Session) error {
				resp, err := s.GetBib(ctx, args[0], fields...)
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}
	get.Flags().StringSliceVar(&fields, "fields", nil, "Fields to return (default id,createdDate,normTitle)")

	var format string
	marc := &cobra.Command{
		Use:   "marc <id>",
		Short: "Get a bib record as MARC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := marcFormat(format)
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(ctx context.Context, s *sierra.Session) error {
				resp, err := s.GetBibMARC(ctx, args[0], f)
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}
	marc.Flags().StringVar(&format, "format", "json", "MARC format (json, xml, in-json)")

	var body bodyFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a bib record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := body.load(true)
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(ctx context.Context, s *sierra.Session) error {
				resp, err := s.UpdateBib(ctx, args[0], data, body.options())
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}
	body.register(update)

	bib.AddCommand(get, marc, update)
	return bib
}

func marcFormat(name string) (sierra.MARCFormat, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return sierra.MARCJSON, nil
	case "xml":
		return sierra.MARCXML, nil
	case "in-json":
		return sierra.MARCInJSON, nil
	default:
		return "", fmt.Errorf("unknown MARC format %q", name)
	}
}

// ============================================================================
// item
// ============================================================================

func (a *app) itemCommand() *cobra.Command {
	item := &cobra.Command{
		Use:   "item",
		Short: "Read and update item records",
	}

	var opts sierra.GetItemOptions
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Get an item record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(ctx context.Context, s *sierra.Session) error {
				resp, err := s.GetItem(ctx, args[0], &opts)
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}
	get.Flags().StringSliceVar(&opts.Fields, "fields", nil, "Fields to return")
	get.Flags().StringVar(&opts.Accept, "accept", "", "Response media type")

	var body bodyFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an item record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := body.load(false)
			if err != nil {
				return err
			}
			return a.withSession(cmd.Context(), func(ctx context.Context, s *sierra.Session) error {
				resp, err := s.UpdateItem(ctx, args[0], data, body.options())
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}
	body.register(update)

	item.AddCommand(get, update)
	return item
}

func (a *app) itemsCommand() *cobra.Command {
	items := &cobra.Command{
		Use:   "items",
		Short: "Query item records",
	}

	var (
		opts       sierra.ListItemsOptions
		ids        []string
		bibIDs     []string
		deleted    bool
		suppressed bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List item records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(ids) > 0 {
				opts.IDs = ids
			}
			if len(bibIDs) > 0 {
				opts.BibIDs = bibIDs
			}
			if cmd.Flags().Changed("deleted") {
				opts.Deleted = &deleted
			}
			if cmd.Flags().Changed("suppressed") {
				opts.Suppressed = &suppressed
			}

			return a.withSession(cmd.Context(), func(ctx context.Context, s *sierra.Session) error {
				resp, err := s.ListItems(ctx, opts)
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}

	f := list.Flags()
	f.StringSliceVar(&ids, "ids", nil, "Item record numbers")
	f.IntVar(&opts.Limit, "limit", 0, "Maximum number of entries")
	f.IntVar(&opts.Offset, "offset", 0, "Index of the first entry")
	f.StringSliceVar(&opts.Fields, "fields", nil, "Fields to return")
	f.StringVar(&opts.CreatedDate, "created-date", "", "Creation date or range, e.g. [2024-01-01T00:00:00Z,]")
	f.StringVar(&opts.UpdatedDate, "updated-date", "", "Update date or range")
	f.StringVar(&opts.DeletedDate, "deleted-date", "", "Deletion date or range")
	f.BoolVar(&deleted, "deleted", false, "Only deleted (true) or non-deleted (false) items")
	f.StringSliceVar(&bibIDs, "bib-ids", nil, "Bib record numbers the items are attached to")
	f.StringVar(&opts.Status, "status", "", "Item status code")
	f.StringVar(&opts.DueDate, "due-date", "", "Due date or range")
	f.BoolVar(&suppressed, "suppressed", false, "Only suppressed (true) or unsuppressed (false) items")
	f.StringSliceVar(&opts.Locations, "locations", nil, "Location codes; a code may end in *")

	items.AddCommand(list)
	return items
}

// bodyFlags are the payload flags shared by the update commands.
type bodyFlags struct {
	data        string
	file        string
	contentType string
	accept      string
}

func (b *bodyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.data, "data", "", "Request body")
	cmd.Flags().StringVar(&b.file, "file", "", "Read the request body from a file")
	cmd.Flags().StringVar(&b.contentType, "content-type", "", "Request media type (default application/json)")
	cmd.Flags().StringVar(&b.accept, "accept", "", "Response media type (default application/json)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	cmd.MarkFlagsOneRequired("data", "file")
}

// load returns the body as a string, or as bytes when read from a file and
// the endpoint accepts raw bytes.
func (b *bodyFlags) load(allowBytes bool) (any, error) {
	if b.file == "" {
		return b.data, nil
	}

	raw, err := os.ReadFile(b.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if allowBytes {
		return raw, nil
	}
	return string(raw), nil
}

func (b *bodyFlags) options() *sierra.UpdateOptions {
	return &sierra.UpdateOptions{ContentType: b.contentType, Accept: b.accept}
}

// ============================================================================
// version
// ============================================================================

func (a *app) versionCommand() *cobra.Command {
	var banner bool
	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if banner {
				figure.Write(w, figure.NewFigure("sierra", "cybermedium", true))
				fmt.Fprintln(w)
			}
			_, err := fmt.Fprintf(w, "sierra %s (client %s, api %s)\n", a.version, sierra.Version, sierra.DefaultAPIVersion)
			return err
		},
	}
	cmd.Flags().BoolVar(&banner, "banner", false, "Print the banner")
	return cmd
}
