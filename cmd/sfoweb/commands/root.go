package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Takenobou/sfoweb-appointments/internal/config"
	"github.com/Takenobou/sfoweb-appointments/internal/logging"
	"github.com/Takenobou/sfoweb-appointments/internal/model"
)

// version is set at build time with -ldflags "-X ...commands.version=...".
var version = "dev"

type globalOptions struct {
	configPath string
	logLevel   string
}

// credentialFlags pick the account a one-shot command runs as.
type credentialFlags struct {
	username string
	password string
	account  string
}

// NewRootCmd assembles the sfoweb command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "sfoweb",
		Short:         "sfoweb fetches Selvbestemmer appointments from the SFO parent portal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "JSON config file (defaults to $"+config.FileEnv+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newFetchCmd(opts), newValidateCmd(opts), newVersionCmd())
	return root
}

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and a logger writing to the command's stderr so
// stdout stays clean for results.
func (o *globalOptions) setup(cmd *cobra.Command) (config.Config, *slog.Logger, io.Closer, error) {
	overrides := map[string]any{}
	if o.logLevel != "" {
		overrides["log.level"] = o.logLevel
	}

	cfg, err := config.Load(o.configPath, overrides)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Output:     cmd.ErrOrStderr(),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, closer, nil
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.username, "username", "", "portal username (overrides configured accounts)")
	cmd.Flags().StringVar(&f.password, "password", "", "portal password")
	cmd.Flags().StringVar(&f.account, "account", "", "configured account name (defaults to the first)")
}

func (f *credentialFlags) resolve(cfg config.Config) (model.Credentials, error) {
	if f.username != "" || f.password != "" {
		return model.Credentials{Username: f.username, Password: f.password}, nil
	}
	if f.account != "" {
		a, ok := cfg.Account(f.account)
		if !ok {
			return model.Credentials{}, fmt.Errorf("account %q is not configured", f.account)
		}
		return a.Credentials(), nil
	}
	if err := cfg.RequireAccounts(); err != nil {
		return model.Credentials{}, fmt.Errorf("%w: pass --username and --password", err)
	}
	return cfg.Accounts[0].Credentials(), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
