package main

import (
	"encoding/json"
	"net/url"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/alvarorichard/anistream/internal/app"
	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/parsers"
	"github.com/alvarorichard/anistream/internal/resolver"
)

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var req resolver.Request

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the playable stream of an episode page",
		Example: `  anistream resolve --path /animes/naruto/1
  anistream resolve --alt-id 20 --path /animes/naruto/1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.NewServices(opts.cfg)
			if err != nil {
				return err
			}
			stream, err := svc.Resolver.Resolve(commandContext(cmd), req)
			if err != nil {
				return printError(cmd, err)
			}
			return printJSON(cmd, stream)
		},
	}
	cmd.Flags().StringVar(&req.Path, "path", "", "episode page path or absolute URL")
	cmd.Flags().StringVar(&req.AltID, "alt-id", "", "alternate identifier for the unified lookup")
	return cmd
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a page through the session client, optionally parsing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parse parsers.Func
			if kind != "" {
				fn, ok := parsers.Lookup(parsers.Kind(kind))
				if !ok {
					return errors.Errorf("unknown page kind %q (want one of %v)", kind, parsers.Kinds())
				}
				parse = fn
			}

			svc, err := app.NewServices(opts.cfg)
			if err != nil {
				return err
			}
			page, err := svc.Pages.Fetch(commandContext(cmd), args[0])
			if err != nil {
				return printError(cmd, err)
			}
			if parse == nil {
				_, err = cmd.OutOrStdout().Write([]byte(page.HTML))
				return err
			}

			base, err := url.Parse(page.FinalURL)
			if err != nil {
				return errors.Wrap(err, "final url")
			}
			record, err := parse(page.HTML, base)
			if err != nil {
				return err
			}
			return printJSON(cmd, record)
		},
	}
	cmd.Flags().StringVar(&kind, "parse", "", "parse the page as search, details, episodes or related")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printError writes the same diagnostics the HTTP API returns, then fails.
func printError(cmd *cobra.Command, err error) error {
	body := apperr.Fields(err)
	body["ok"] = false
	body["error"] = err.Error()
	enc := json.NewEncoder(cmd.ErrOrStderr())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
	return err
}
