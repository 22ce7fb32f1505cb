// Package cli implements the couchq command line.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	couchhelper "github.com/biyonik/go-couch-helper"
	"github.com/biyonik/go-couch-helper/driver/memdriver"
	"github.com/biyonik/go-couch-helper/internal/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	host       string
	username   string
	password   string
	bucket     string
	scope      string
	collection string
	tls        bool
	logLevel   string
	debug      bool
	memory     bool

	// mem is reused across sessions of one process in --memory mode.
	mem *memdriver.Cluster
}

// NewRootCmd builds the couchq command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{})
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "couchq",
		Short: "couchq - query and edit Couchbase documents",
		Long: `couchq renders and runs N1QL queries and reads or writes single documents.

Connection settings come from --config (YAML), then COUCHBASE_* environment
variables, then flags. --memory runs against an empty in-memory cluster.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&opts.host, "host", "", "cluster host")
	f.StringVarP(&opts.username, "username", "u", "", "username")
	f.StringVarP(&opts.password, "password", "p", "", "password")
	f.StringVarP(&opts.bucket, "bucket", "b", "", "bucket")
	f.StringVar(&opts.scope, "scope", "", "scope")
	f.StringVar(&opts.collection, "collection", "", "collection")
	f.BoolVar(&opts.tls, "tls", false, "connect with couchbases://")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	f.BoolVar(&opts.debug, "debug", false, "log every statement")
	f.BoolVar(&opts.memory, "memory", false, "use an in-memory cluster")

	cmd.AddCommand(
		newRenderCmd(),
		newQueryCmd(opts),
		newGetCmd(opts),
		newUpsertCmd(opts),
		newRemoveCmd(opts),
		newPingCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("couchq version %s\n", couchhelper.Version)
		},
	}
}

// loadConfig layers flags that were set explicitly on top of the file and
// environment configuration.
func (o *globalOptions) loadConfig(flags *pflag.FlagSet) (*couchhelper.Config, error) {
	cfg, err := couchhelper.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	flags.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "host":
			cfg.Host = o.host
		case "username":
			cfg.Username = o.username
		case "password":
			cfg.Password = o.password
		case "bucket":
			cfg.Bucket = o.bucket
		case "scope":
			cfg.Scope = o.scope
		case "collection":
			cfg.Collection = o.collection
		case "tls":
			cfg.TLS = o.tls
		}
	})

	if o.memory && cfg.Username == "" {
		cfg.Username = "memory"
	}
	return cfg, nil
}

func (o *globalOptions) logger(w io.Writer) zerolog.Logger {
	return logging.NewWithComponent(logging.Config{
		Level:  o.logLevel,
		Pretty: true,
		Output: w,
	}, "couchq")
}

// session opens a connected session for cmd.
func (o *globalOptions) session(ctx context.Context, cmd *cobra.Command) (*couchhelper.Session, error) {
	cfg, err := o.loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}

	sessionOpts := []couchhelper.Option{
		couchhelper.WithLogger(o.logger(cmd.ErrOrStderr())),
		couchhelper.WithDebug(o.debug),
	}
	if o.memory {
		if o.mem == nil {
			o.mem = memdriver.New()
		}
		sessionOpts = append(sessionOpts, couchhelper.WithConnector(o.mem.Connector()))
	}

	return couchhelper.Connect(ctx, cfg, sessionOpts...)
}

func (o *globalOptions) helper(ctx context.Context, cmd *cobra.Command) (*couchhelper.Helper, func(), error) {
	s, err := o.session(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	h, err := couchhelper.NewHelper(ctx, s)
	if err != nil {
		_ = s.Disconnect(ctx)
		return nil, nil, err
	}
	return h, func() { _ = s.Disconnect(ctx) }, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
