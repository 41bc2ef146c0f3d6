package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sadopc/cragboard/internal/board"
	"github.com/sadopc/cragboard/internal/config"
	"github.com/sadopc/cragboard/internal/logging"
	"github.com/sadopc/cragboard/internal/poll"
	"github.com/sadopc/cragboard/internal/remote"
	"github.com/sadopc/cragboard/internal/store"
	"github.com/sadopc/cragboard/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger, closer, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	s, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := remote.New(remote.Config{
		VisitsURL: cfg.VisitsURL,
		GymsURL:   cfg.GymsURL,
		ChatURL:   cfg.ChatURL,
		ChatName:  cfg.ChatName,
		ChatSheet: cfg.ChatSheet,
		Logger:    logger,
	})

	visits := board.NewVisitBoard(api, store.NewCache[board.VisitEvent](s, logger), board.Options{
		TTL:    cfg.ShadowTTL,
		Logger: logger,
	})
	gyms := board.NewGymBoard(api, store.NewCache[board.GymEntry](s, logger), board.Options{
		TTL:    cfg.ShadowTTL,
		Logger: logger,
	})
	chat := board.NewChatBoard(api, store.NewCache[board.ChatMessage](s, logger), board.ChatOptions{
		Options:    board.Options{TTL: cfg.ChatTTL, Logger: logger},
		BatchSize:  cfg.ChatBatchSize,
		CacheLimit: cfg.ChatCacheLimit,
	})

	visitPoller := poll.New(board.VisitsKey, cfg.SyncInterval, visits.Refresh, poll.WithLogger(logger))
	gymPoller := poll.New(board.GymsKey, cfg.SyncInterval, gyms.Refresh,
		poll.WithLogger(logger),
		poll.WithGate(func() bool { return !gyms.Editing() }),
	)
	chatPoller := poll.New(board.ChatKey, cfg.ChatSyncInterval, chat.Refresh, poll.WithLogger(logger))

	// A sync after a mutation waits out a tick fetch already in flight.
	visits.SetSync(visitPoller.SyncAfter)
	gyms.SetSync(gymPoller.SyncAfter)
	chat.SetSync(chatPoller.SyncAfter)

	if cfg.VisitsURL == "" {
		logger.Warn("API_URL is not set, working from the local cache only")
	} else {
		visitPoller.Start(ctx)
		defer visitPoller.Stop()
	}
	if cfg.GymsURL != "" {
		gymPoller.Start(ctx)
		defer gymPoller.Stop()
	}
	defer chatPoller.Stop()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("cragboard starting",
		"db", cfg.DBPath,
		"sync_interval", cfg.SyncInterval,
		"chat_sync_interval", cfg.ChatSyncInterval,
		"shadow_ttl", cfg.ShadowTTL,
	)

	app := tui.NewApp(ctx, tui.Deps{
		Store:       s,
		Visits:      visits,
		Gyms:        gyms,
		Chat:        chat,
		VisitPoller: visitPoller,
		GymPoller:   gymPoller,
		ChatPoller:  chatPoller,
	})
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server online", "url", "http://"+addr+"/metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return server
}
