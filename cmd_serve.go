package main

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/Raj-Manghani/terminus-prime/internal/config"
	"github.com/Raj-Manghani/terminus-prime/internal/display"
	"github.com/Raj-Manghani/terminus-prime/internal/gateway"
	"github.com/Raj-Manghani/terminus-prime/internal/handlers"
	"github.com/Raj-Manghani/terminus-prime/internal/logging"
	"github.com/Raj-Manghani/terminus-prime/internal/middleware"
	"github.com/Raj-Manghani/terminus-prime/internal/shellbridge"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Unlock the profile store and serve the shell bridge over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Settings) error {
	logFile, err := logging.Init(cfg.LogPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	trimmer, err := logFile.ScheduleTrim(cfg.LogTrimSchedule, cfg.LogKeepLines)
	if err != nil {
		return err
	}
	defer trimmer.Stop()

	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(sigCtx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dialer, err := shellbridge.NewSSHDialer(cfg.ConnectTimeout, cfg.KnownHostsPath)
	if err != nil {
		return err
	}
	bridge := shellbridge.New(dialer, shellbridge.Options{
		RequestQueue:    cfg.RequestQueue,
		EventQueue:      cfg.EventQueue,
		MaxPendingWrite: cfg.MaxPendingWrite,
		PTY:             shellbridge.PTY{Term: cfg.TermType},
	})
	bridge.Start(sigCtx)

	hub := display.NewHub(bridge.Events(), cfg.ScrollbackBytes)
	go hub.Run(sigCtx)

	gw := gateway.New(a.registry, bridge, a.store)
	gw.SetConnectLimit(cfg.ConnectAttempts)
	handlers.Gateway = gw
	handlers.Hub = hub
	handlers.Store = a.store
	handlers.Vault = a.vault
	handlers.LogFile = logFile
	handlers.AllowedOrigins = cfg.AllowedOrigins

	if cfg.APIToken == "" && !isLoopback(cfg.ListenAddr) {
		log.Printf("WARNING: listening on %s without TERMINUS_API_TOKEN", cfg.ListenAddr)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(cfg.APIToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.TLS {
		host, _, _ := net.SplitHostPort(cfg.ListenAddr)
		cert, err := a.vault.ServerCertificate(sigCtx, a.store, []string{"localhost", "127.0.0.1", host})
		if err != nil {
			bridge.Stop()
			return err
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s (tls=%v)", cfg.ListenAddr, cfg.TLS)
		var err error
		if cfg.TLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		if err != nil {
			bridge.Stop()
			return err
		}
	}
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	bridge.Stop()
	<-hub.Done()
	log.Println("Server stopped")
	return nil
}

func newRouter(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health (no auth)
	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(token))

		r.Get("/profiles", handlers.ListProfiles)
		r.Post("/profiles", handlers.CreateProfile)
		r.Put("/profiles/{id}", handlers.UpdateProfile)
		r.Delete("/profiles/{id}", handlers.DeleteProfile)

		r.Get("/settings", handlers.GetSettings)
		r.Put("/settings", handlers.UpdateSettings)

		r.Get("/logs", handlers.GetServerLogs)
		r.Delete("/logs", handlers.ClearServerLogs)

		r.Get("/shell", handlers.TerminalWS)
		r.Get("/shell/status", handlers.GetShellStatus)
	})
	return r
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
