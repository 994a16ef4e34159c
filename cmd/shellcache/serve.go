package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/shellcache"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	portFlag   int
	originFlag string
	dirFlag    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the application through the cache",
	Long: `Serve the application through the cache.

Requests are proxied to the origin, or answered from the files in --dir when
it is given. The engine is installed and activated before listening.`,
	RunE: serve,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&originFlag, "origin", "", "Origin URL of the application (overrides config)")
	serveCmd.Flags().StringVar(&dirFlag, "dir", "", "Serve the application from this directory instead of the origin")
}

func serve(cmd *cobra.Command, args []string) error {
	config, err := getConfig(configFilenameFlag)
	if err != nil {
		return err
	}
	if originFlag != "" {
		config.Origin = originFlag
	}

	store, closeStore, err := openStore(dbFilenameFlag)
	if err != nil {
		return err
	}
	defer closeStore()

	var network http.RoundTripper
	if dirFlag != "" {
		network = shellcache.HandlerTransport(http.FileServer(http.Dir(dirFlag)))
	}

	engine, err := shellcache.New(config.engineConfig(log.Logger), store, network)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("could not start engine: %w", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", portFlag),
		Handler: newServer(engine, log.Logger),
	}
	errs := make(chan error, 1)
	go func() {
		log.Info().Msgf("Serving %s on port %d", config.Origin, portFlag)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Could not shut down server")
	}
	// let pending cache writes finish
	if err := engine.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Background tasks did not finish")
	}
	return nil
}
