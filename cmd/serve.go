package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-carto/fondplan/internal/export"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an exported composition over HTTP",
	Long: `Serves the layer files of an exported composition for local preview in
a browser map client. The manifest is available at /manifest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dir, _ := cmd.Flags().GetString("dir")
		port, _ := cmd.Flags().GetInt("port")
		if dir == "" {
			dir = cfg.Output.Dir
		}
		if port == 0 {
			port = cfg.Server.Port
		}

		manifestPath := filepath.Join(dir, export.ManifestName)
		if _, err := os.Stat(manifestPath); err != nil {
			return eris.Wrapf(err, "serve: no composition found in %s", dir)
		}

		log := zap.L().With(zap.String("component", "serve"))

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}))

		r.Get("/manifest", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			http.ServeFile(w, req, manifestPath)
		})
		r.Handle("/*", http.FileServer(http.Dir(dir)))

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("serving composition",
				zap.String("dir", dir),
				zap.Int("port", port),
			)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "serve: shutdown")
			}
			log.Info("server stopped")
			return nil
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().String("dir", "", "composition directory (default from config)")
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
