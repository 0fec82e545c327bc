package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/skiffhost/skiffd/internal/api/middleware"
	"github.com/skiffhost/skiffd/internal/api/rest"
	"github.com/skiffhost/skiffd/internal/api/websocket"
	"github.com/skiffhost/skiffd/internal/config"
	"github.com/skiffhost/skiffd/internal/logging"
	"github.com/skiffhost/skiffd/internal/orchestrator"
	"github.com/skiffhost/skiffd/internal/shell"
	"github.com/skiffhost/skiffd/internal/tunnel"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skiffd: config: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.Log.Format, cfg.Log.Level)
	logger.Info("skiffd starting", "base_path", cfg.BasePath, "listen_addr", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := shell.NewExecutor()
	quickTunnel := tunnel.NewProcessProvider("quicktunnel", "cloudflared", executor,
		func(localPort int, options map[string]string) []string {
			return []string{"tunnel", "--url", fmt.Sprintf("http://localhost:%d", localPort)}
		})

	var tunnelProviders []tunnel.Provider
	tunnelProviders = append(tunnelProviders, quickTunnel)
	for name, token := range cfg.Tunnel.ProviderTokens {
		tunnelProviders = append(tunnelProviders, tunnel.NewAPIProvider(name, "https://api."+name+".com", token))
	}

	orch, err := orchestrator.New(ctx, cfg, tunnelProviders...)
	if err != nil {
		logger.Error("orchestrator init failed", "error", err)
		return 1
	}
	orch.Start(ctx)

	router := mux.NewRouter()
	handler := rest.NewHandler(orch)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "skiffd"})
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	rest.SetupRoutes(apiRouter, handler)

	wsHub := websocket.NewHub(ctx, orch.Bus, logger)
	wsHandler := websocket.NewHandler(wsHub, orch.Bus, cfg, logger)
	router.HandleFunc("/ws/events", wsHandler.ServeWS).Methods("GET")

	consoleHandler := websocket.NewConsoleHandler(orch, logger)
	router.HandleFunc("/ws/apps/{appId}/console", consoleHandler.ServeConsole).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	router.Use(middleware.SecureHeaders)
	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLog(logger))
	router.Use(middleware.Recovery(logger))
	if cfg.API.AuthSecret != "" {
		exempt := map[string]bool{"/health": true, "/metrics": true}
		router.Use(middleware.Auth([]byte(cfg.API.AuthSecret), exempt))
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.API.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	listener, actualAddr, err := bindWithRetry(cfg.ListenAddr, 10)
	if err != nil {
		logger.Error("failed to bind listener", "error", err)
		return 1
	}
	defer listener.Close()

	srv := &http.Server{
		Handler:      corsHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", actualAddr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down")
	case err := <-serveErrCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			return 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	wsHub.Stop()
	if err := orch.Shutdown(); err != nil {
		logger.Error("orchestrator shutdown error", "error", err)
		return 1
	}

	logger.Info("skiffd stopped")
	return 0
}

// bindWithRetry tries listenAddr's port and the ports after it, attempts
// ports in all (listenAddr included), skipping past EADDRINUSE the way the teacher's server bootstrap does
// for its port range.
func bindWithRetry(listenAddr string, attempts int) (net.Listener, string, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, "", err
	}
	basePort := 0
	if _, err := fmt.Sscanf(portStr, "%d", &basePort); err != nil {
		return nil, "", err
	}

	for i := 0; i < attempts; i++ {
		addr := fmt.Sprintf("%s:%d", host, basePort+i)
		l, err := net.Listen("tcp", addr)
		if err == nil {
			return l, addr, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no available port in range %s+%d", listenAddr, attempts)
}
