package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/daemon"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the submission daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr := ctx.address(); addr != "" {
				cfg.Paths.APIBind = addr
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			pidPath := filepath.Join(cfg.Paths.DataDir, "vidsurvey.pid")
			if err := writePIDFile(pidPath); err != nil {
				return fmt.Errorf("write pid file: %w", err)
			}
			defer os.Remove(pidPath)

			st, err := store.Open(cfg)
			if err != nil {
				logging.ErrorWithContext(logger, "open store", "store_open_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check data_dir permissions or move an incompatible database aside"),
				)
				return err
			}
			clips, err := clipstore.Open(cfg.Paths.ClipDir)
			if err != nil {
				st.Close()
				return err
			}

			d, err := daemon.New(cfg, st, clips, nil, logger, version)
			if err != nil {
				st.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vidsurvey listening on %s\n", d.Address())

			<-signalCtx.Done()
			logger.Info("vidsurvey daemon shutting down")
			return nil
		},
	}
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
