package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/go-github/v73/github"
	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/ghaccess"
	"github.com/MyCarrier-DevOps/ghaccess/auth"
	"github.com/MyCarrier-DevOps/ghaccess/config"
	github_handler "github.com/MyCarrier-DevOps/ghaccess/github"
	"github.com/MyCarrier-DevOps/ghaccess/logger"
	ghotel "github.com/MyCarrier-DevOps/ghaccess/otel"
	"github.com/MyCarrier-DevOps/ghaccess/yaml"
)

type options struct {
	owner string
	repo  string

	shutdownTracing ghotel.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "ghaccess",
		Short:         "Authenticated GitHub API access",
		Long:          `Resolve GitHub credentials and the repository context from GITHUB_* variables and call the GitHub API with retries and rate limit handling.`,
		Version:       ghaccess.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			shutdown, err := ghotel.InitTracing(cmd.Context(), logger.AppName, ghaccess.Version, nil)
			if err != nil {
				return err
			}
			opts.shutdownTracing = shutdown
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.shutdownTracing == nil {
				return nil
			}
			return opts.shutdownTracing(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.owner, "owner", "", "Repository owner (overrides GITHUB_OWNER)")
	rootCmd.PersistentFlags().StringVar(&opts.repo, "repo", "", "Repository name (overrides GITHUB_REPO)")

	rootCmd.AddCommand(
		newRepoCmd(opts),
		newTokenCmd(opts),
		newRateLimitCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newCloneCmd(opts),
	)
	return rootCmd
}

// setup loads configuration and builds the client. Logs go to stderr so stdout stays parseable.
func setup(ctx context.Context, opts *options) (*github_handler.Client, logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if opts.owner != "" {
		cfg.Owner = opts.owner
	}
	if opts.repo != "" {
		cfg.Repo = opts.repo
	}

	log := logger.NewZapLoggerWithLevel(logger.AppName, cfg.LogLevel)
	client, err := github_handler.NewClientFromConfig(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return client, log, nil
}

func newRepoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repo",
		Short: "Print the resolved repository context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			rc, err := client.CurrentRepository()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rc.FullName(), rc.APIBaseURL)
			return nil
		},
	}
}

func newTokenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Resolve a credential and print its strategy and expiry",
		Long:  `Resolve a credential and print its strategy and expiry. The token itself is never printed.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			cred, err := client.Resolver().Resolve(cmd.Context())
			if err != nil {
				return err
			}

			strategy := "unknown"
			if k, ok := client.Resolver().(interface{ Strategy() auth.Strategy }); ok {
				strategy = k.Strategy().Kind()
			}
			expires := "never"
			if !cred.ExpiresAt.IsZero() {
				expires = cred.ExpiresAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "strategy=%s expires=%s\n", strategy, expires)
			return nil
		},
	}
}

func newRateLimitCmd(opts *options) *cobra.Command {
	var graphql bool

	cmd := &cobra.Command{
		Use:   "rate-limit",
		Short: "Print the remaining API budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if graphql {
				rl, err := client.GraphQLRateLimit(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "graphql\t%d/%d\t%s\n", rl.Remaining, rl.Limit, rl.ResetAt.UTC().Format(time.RFC3339))
				return nil
			}

			resp, err := client.Execute(cmd.Context(), github_handler.Get("/rate_limit", nil))
			if err != nil {
				return err
			}
			var body struct {
				Resources map[string]github.Rate `json:"resources"`
			}
			if err := resp.Decode(&body); err != nil {
				return fmt.Errorf("error decoding rate limit: %w", err)
			}
			return printRates(out, body.Resources)
		},
	}
	cmd.Flags().BoolVar(&graphql, "graphql", false, "Query the GraphQL point budget instead")
	return cmd
}

func printRates(out io.Writer, rates map[string]github.Rate) error {
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		r := rates[name]
		fmt.Fprintf(w, "%s\t%d/%d\t%s\n", name, r.Remaining, r.Limit, r.Reset.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func newGetCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a REST path and print the response body",
		Long: `GET a REST path and print the response body.

Absolute paths (/orgs/octo) are used as-is; relative paths (issues?state=open) are resolved
under the current repository.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unsupported output format %q (want json or yaml)", output)
			}
			client, _, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			req, err := requestFor(client, args[0])
			if err != nil {
				return err
			}
			resp, err := client.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "yaml" && len(resp.Body) > 0 {
				return yaml.FromJSON(out, resp.Body)
			}
			if _, err := out.Write(resp.Body); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var (
		maxItems   int
		itemsField string
	)

	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "Page through a list endpoint, printing one JSON item per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			req, err := requestFor(client, args[0])
			if err != nil {
				return err
			}
			req.ItemsField = itemsField

			out := cmd.OutOrStdout()
			for item, err := range client.Paginate(cmd.Context(), req, maxItems) {
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(out, string(item)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxItems, "max", 0, "Stop after this many items (0 for all)")
	cmd.Flags().StringVar(&itemsField, "items-field", "", "Array field of a wrapped list body, for example workflow_runs")
	return cmd
}

func newCloneCmd(opts *options) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "clone <dir>",
		Short: "Shallow-clone the current repository with the resolved credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, log, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if _, err := client.Clone(cmd.Context(), args[0], branch); err != nil {
				return err
			}
			log.Info(cmd.Context(), "Repository cloned", map[string]interface{}{"dir": args[0], "branch": branch})
			return nil
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to clone (default branch when empty)")
	return cmd
}

// requestFor turns a command-line path into a GET request. Relative paths live under the
// current repository.
func requestFor(client *github_handler.Client, arg string) (github_handler.Request, error) {
	path, rawQuery, _ := strings.Cut(arg, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return github_handler.Request{}, fmt.Errorf("invalid query in %q: %w", arg, err)
	}

	if !strings.HasPrefix(path, "/") {
		rc, err := client.CurrentRepository()
		if err != nil {
			return github_handler.Request{}, err
		}
		path = rc.RepoPath(path)
	}
	return github_handler.Get(path, query), nil
}
