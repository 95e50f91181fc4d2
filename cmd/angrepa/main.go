package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/docker/docker/client"

	"github.com/Cyberlandslaget/angrepa/internal/api"
	"github.com/Cyberlandslaget/angrepa/internal/clock"
	"github.com/Cyberlandslaget/angrepa/internal/config"
	"github.com/Cyberlandslaget/angrepa/internal/events"
	"github.com/Cyberlandslaget/angrepa/internal/fetcher"
	"github.com/Cyberlandslaget/angrepa/internal/maintenance"
	"github.com/Cyberlandslaget/angrepa/internal/notify"
	"github.com/Cyberlandslaget/angrepa/internal/runner"
	"github.com/Cyberlandslaget/angrepa/internal/store"
	"github.com/Cyberlandslaget/angrepa/internal/submitter"
	"github.com/Cyberlandslaget/angrepa/internal/ws"
)

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func serve() int {
	initLogger()

	cfg, err := config.Load("config.toml")
	if err != nil {
		slog.Error("config load failed", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gameClock := clock.New(mustStart(cfg), cfg.Common.TickDuration())
	gameClock.SleepUntilStart(ctx)

	st, err := store.New(ctx, store.Config{DSN: cfg.Database.DSN()})
	if err != nil {
		slog.Error("store init failed", "error", err)
		return 1
	}
	defer st.Close()

	for _, svc := range cfg.Common.Services {
		if err := st.UpsertService(ctx, svc); err != nil {
			slog.Warn("failed to upsert configured service", "service", svc, "error", err)
		}
	}
	for _, svc := range cfg.Common.ServicesWithoutFlagID {
		if err := st.UpsertService(ctx, svc); err != nil {
			slog.Warn("failed to upsert configured service", "service", svc, "error", err)
		}
	}

	if cfg.Common.NOP != "" {
		if err := st.UpsertTeam(ctx, cfg.Common.NOP); err != nil {
			slog.Warn("failed to upsert nop team", "team", cfg.Common.NOP, "error", err)
		} else if err := st.UpdateTeamName(ctx, cfg.Common.NOP, "nop"); err != nil {
			slog.Warn("failed to label nop team", "team", cfg.Common.NOP, "error", err)
		}
	}
	if cfg.Common.Own != "" {
		if err := st.UpsertTeam(ctx, cfg.Common.Own); err != nil {
			slog.Warn("failed to upsert own team", "team", cfg.Common.Own, "error", err)
		} else if err := st.UpdateTeamName(ctx, cfg.Common.Own, "own"); err != nil {
			slog.Warn("failed to label own team", "team", cfg.Common.Own, "error", err)
		}
	}

	eventHub := events.NewHub()

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		slog.Error("docker client init failed", "error", err)
		return 1
	}

	flagRegex, err := regexp.Compile(cfg.Common.Format)
	if err != nil {
		slog.Error("invalid flag format regex", "error", err)
		return 1
	}

	fetchAdapter, err := buildFetcherAdapter(cfg)
	if err != nil {
		slog.Error("fetcher adapter init failed", "error", err)
		return 1
	}
	fetchRoutine := fetcher.NewRoutine(fetchAdapter, st, gameClock, cfg.Common.Rename, cfg.Common.Services, cfg.Common.ServicesWithoutFlagID)

	submitAdapter, err := buildSubmitterAdapter(cfg)
	if err != nil {
		slog.Error("submitter adapter init failed", "error", err)
		return 1
	}
	handler := submitter.NewHandler(st, submitAdapter)

	exploitRunner := runner.New(docker, st, gameClock, cfg.Common.FlagValidity, softTimeout(cfg), flagRegex)
	defer exploitRunner.Close(context.Background())

	notifyBridge := notify.New(st.Pool(), st, eventHub)

	mux := http.NewServeMux()
	api.Register(mux, gameClock, currentVersion())

	wsServer := ws.NewServer(cfg.Runner.WSServer, eventHub)

	fetchInterval := clock.NewTickInterval(gameClock, cfg.Common.Offset())
	defer fetchInterval.Stop()
	runnerInterval := clock.NewTickInterval(gameClock, cfg.Common.Offset())
	defer runnerInterval.Stop()

	go fetchRoutine.Run(ctx, fetchInterval)
	go exploitRunner.Run(ctx, runnerInterval)
	go handler.Run(ctx)
	go notifyBridge.Run(ctx)
	go func() {
		if err := wsServer.Run(ctx); err != nil {
			slog.Error("notification bus server error", "error", err)
		}
	}()

	if cfg.Maintenance.Cron != "" {
		job := maintenance.New(st, cfg.Maintenance.Cron, cfg.Maintenance.KeepDays)
		go job.Run(ctx)
	}

	return run(ctx, cfg, mux)
}

func mustStart(cfg config.Config) time.Time {
	start, err := cfg.Common.StartTime()
	if err != nil {
		slog.Error("invalid common.start", "error", err)
		os.Exit(1)
	}
	return start
}

func softTimeout(cfg config.Config) time.Duration {
	soft := cfg.Common.TickDuration() - cfg.Common.Offset()
	if soft <= 0 {
		soft = cfg.Common.TickDuration()
	}
	return soft
}

func buildFetcherAdapter(cfg config.Config) (fetcher.Adapter, error) {
	switch cfg.Manager.FetcherName {
	case "tick-keyed":
		url, _ := cfg.Manager.Fetcher["url"].(string)
		return fetcher.NewTickKeyed(url, 5*time.Second), nil
	case "list-only":
		url, _ := cfg.Manager.Fetcher["url"].(string)
		ipFormat, _ := cfg.Manager.Fetcher["ip_format"].(string)
		return fetcher.NewListOnly(url, ipFormat, 5*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown fetcher adapter %q", cfg.Manager.FetcherName)
	}
}

func buildSubmitterAdapter(cfg config.Config) (submitter.Adapter, error) {
	switch cfg.Manager.SubmitterName {
	case "tcp":
		addr, _ := cfg.Manager.Submitter["addr"].(string)
		return submitter.NewTCP(addr, 10*time.Second), nil
	case "http":
		baseURL, _ := cfg.Manager.Submitter["url"].(string)
		path, _ := cfg.Manager.Submitter["path"].(string)
		cookieName, _ := cfg.Manager.Submitter["cookie_name"].(string)
		cookieValue, _ := cfg.Manager.Submitter["cookie_value"].(string)
		return submitter.NewHTTP(baseURL, path, cookieName, cookieValue, 10*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown submitter adapter %q", cfg.Manager.SubmitterName)
	}
}

func run(ctx context.Context, cfg config.Config, mux http.Handler) int {
	server := &http.Server{
		Addr:         cfg.Runner.HTTPServer,
		Handler:      requestLog(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("angrepa starting", "version", currentVersion(), "http", cfg.Runner.HTTPServer, "ws", cfg.Runner.WSServer)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return 1
	}
	slog.Info("angrepa stopped")
	return 0
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).Truncate(time.Millisecond))
	})
}

func initLogger() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}
