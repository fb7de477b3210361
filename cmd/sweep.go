package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type sweepOptions struct {
	offset        int
	resume        bool
	skipPreflight bool
	serve         bool
}

func newSweepCmd(c *cli) *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Checks every catalogued resource once",
		Long: `Enumerates every resource id, fetches each resource page and records
whether it still exists. The first --offset positions are skipped; --resume
continues an interrupted sweep from its stored checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("offset") {
				opts.offset = c.cfg.Sweep.Offset
			}
			if !cmd.Flags().Changed("resume") {
				opts.resume = c.cfg.Sweep.Resume
			}
			if !cmd.Flags().Changed("serve") {
				opts.serve = c.cfg.Server.Enabled
			}
			return runSweep(cmd, c, *opts)
		},
	}
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "number of leading positions to skip")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "start from the stored checkpoint when one exists")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "skip the store and site reachability checks")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "run the ops HTTP server while sweeping")
	return cmd
}

func runSweep(cmd *cobra.Command, c *cli, opts sweepOptions) error {
	svc, err := c.service()
	if err != nil {
		return err
	}
	if opts.offset < 0 {
		return fmt.Errorf("offset must be >= 0, got %d", opts.offset)
	}
	ctx := cmd.Context()
	logger := c.logger

	if !opts.skipPreflight {
		if err := svc.Preflight(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sweepDone := make(chan struct{})

	if opts.serve {
		srv := &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(c.cfg.Server.Port)),
			Handler:           svc.Server().Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("ops server started", zap.Int("port", c.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-sweepDone:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("ops server shutdown error", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(sweepDone)
		summary, err := svc.Sweep(gctx, opts.offset, opts.resume)
		if err != nil {
			return fmt.Errorf("run sweep: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary.Message())
		return nil
	})

	return g.Wait()
}
