// Package cmd defines and implements the CLI commands for the existence
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/api"
	"github.com/JakeFAU/resource-existence/internal/app"
	"github.com/JakeFAU/resource-existence/internal/catalog"
	"github.com/JakeFAU/resource-existence/internal/config"
	"github.com/JakeFAU/resource-existence/internal/existence"
	"github.com/JakeFAU/resource-existence/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Service is what the commands need from the application container. It is
// an interface so tests can inject a fake.
type Service interface {
	Preflight(ctx context.Context) error
	Sweep(ctx context.Context, offset int, resume bool) (existence.Summary, error)
	Check(ctx context.Context, id catalog.ResourceID) existence.Result
	Status(ctx context.Context) (app.StatusReport, error)
	Server() *api.Server
	Close(ctx context.Context) error
}

// newService is the application factory, replaced in tests.
var newService = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Service, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger is the logger factory, replaced in tests.
var newLogger = logging.New

type cli struct {
	cfgFile string
	envFile string
	cfg     config.Config
	logger  *zap.Logger
	svc     Service
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "existence",
		Short: "Verifies that catalogued resources still exist on the site.",
		Long: `existence walks every resource in the catalog database, fetches its
page and records whether the resource still looks alive. Resources whose page
is missing or incomplete are flagged as probably deleted.`,
		SilenceUsage: true,

		// Config, logger and services are built before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ./existence.yaml or /etc/existence/existence.yaml)")
	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newSweepCmd(c))
	cmd.AddCommand(newCheckCmd(c))
	cmd.AddCommand(newStatusCmd(c))
	return cmd
}

func (c *cli) init(ctx context.Context) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	c.cfg = cfg
	c.logger = logger

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	c.svc = svc
	return nil
}

func (c *cli) close() {
	if c.svc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.svc.Close(ctx); err != nil && c.logger != nil {
			c.logger.Warn("error closing application services", zap.Error(err))
		}
		c.svc = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func (c *cli) service() (Service, error) {
	if c.svc == nil {
		return nil, errors.New("application services not initialized")
	}
	return c.svc, nil
}

func run(ctx context.Context, args []string) error {
	c := &cli{}
	defer c.close()
	root := newRootCmd(c)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command, which stops the sweep after the current resource.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
