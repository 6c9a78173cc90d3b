package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/permaevidence/HopPT/internal/history"
	"github.com/permaevidence/HopPT/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			hist, err := history.NewStore(a.cfg.History)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.Server.Address
			}
			srv := server.New(a.pipeline, hist, a.metrics, nil)

			logger := log.New(log.Writer(), "[SERVE] ", log.LstdFlags)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			logger.Printf("listening on %s", addr)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return serve
}
