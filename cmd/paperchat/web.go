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

	"github.com/spf13/cobra"

	"github.com/matsen/paperchat/internal/config"
	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/retrieval"
	"github.com/matsen/paperchat/internal/web"
)

const (
	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

var webAddr string

func init() {
	rootCmd.AddCommand(webCmd)
	webCmd.Flags().StringVar(&webAddr, "addr", "", "Listen address (default from config)")
}

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the browser chat UI and JSON API",
	Long: `Serve a single-page chat UI at / and a JSON API under /api/.

Each browser tab gets its own conversation; idle conversations expire after
web.session_ttl_mins minutes.`,
	Args: cobra.NoArgs,
	RunE: runWeb,
}

func runWeb(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := mustChatEnv(ctx)
	defer env.Close()

	addr := env.cfg.Web.Addr
	if webAddr != "" {
		addr = webAddr
	}
	log := logging.NewLogger("web")

	sessions := web.NewSessionStore(env.cfg.SessionTTL())
	server := web.NewServer(env.loop, env.db,
		web.WithSearcher(retrieval.NewRetriever(env.provider, env.store)),
		web.WithSessions(sessions),
		web.WithExportDir(config.ExportsPath(env.repoRoot)),
		web.WithLogger(log),
	)

	go sessions.RunJanitor(ctx, janitorInterval, func(removed int) {
		log.WithField("removed", removed).Debug("expired sessions swept")
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	if humanOutput {
		fmt.Fprintf(os.Stderr, "Serving on http://%s (Ctrl-C to stop)\n", addr)
	} else {
		outputJSON(StatusResponse{Status: "listening", Path: "http://" + addr})
	}
	log.WithField("addr", addr).Info("web server started")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			exitWithError(ExitError, "serving: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
		log.Info("web server stopped")
	}
	return nil
}
