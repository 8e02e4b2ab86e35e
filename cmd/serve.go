package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flipbook/internal/api"
	"flipbook/internal/dispatch"
	"flipbook/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger(false)
		if err != nil {
			return err
		}
		defer closeLog()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srvCfg := api.ServerConfig{
			Addr:       addr,
			Dispatcher: dispatch.New(dispatchConfig(logger)),
			Logger:     logging.WithComponent(logger, "api"),
			StartTime:  time.Now(),
			Version:    version,
		}
		if store := openHistory(logger); store != nil {
			defer store.Close()
			srvCfg.History = store
		}
		srv := api.NewServer(srvCfg)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.ShutdownGrace.Duration+time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
