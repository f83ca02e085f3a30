// Command hrdesk runs the HR portal server.
//
// Usage:
//
//	hrdesk [-config hrdesk.toml] [-addr :8080] [-storage memory|redis|miniredis|sqlite]
//	hrdesk -hash-password
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/internal/config"
	"github.com/MrEthical07/hrdesk/internal/web"
	"github.com/MrEthical07/hrdesk/metrics/export/prometheus"
	"github.com/MrEthical07/hrdesk/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "hrdesk: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath   string
	addr         string
	backend      string
	logLevel     string
	hashPassword bool
}

func parseFlags(args []string, stderr io.Writer) (flags, *flag.FlagSet, error) {
	var f flags
	fs := flag.NewFlagSet("hrdesk", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to a TOML config file")
	fs.StringVar(&f.addr, "addr", "", "listen address, overrides server.addr")
	fs.StringVar(&f.backend, "storage", "", "session storage: memory, redis, miniredis or sqlite")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.hashPassword, "hash-password", false, "read a password and print its argon2id hash")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	return f, fs, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.hashPassword {
		return hashPassword(os.Stdin, stdout, stderr)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "addr":
			cfg.Server.Addr = f.addr
		case "storage":
			cfg.Storage.Backend = f.backend
		case "log-level":
			cfg.Log.Level = f.logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg, stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger, stdout)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	portalCfg, err := cfg.Portal()
	if err != nil {
		return err
	}

	b := hrdesk.New().
		WithConfig(portalCfg).
		WithUsers(cfg.Users...).
		WithLogger(logger)

	var health pinger
	switch cfg.Storage.Backend {
	case config.BackendRedis, config.BackendMiniredis:
		addr := cfg.Storage.RedisAddr
		if cfg.Storage.Backend == config.BackendMiniredis {
			mr, err := miniredis.Run()
			if err != nil {
				return fmt.Errorf("start miniredis: %w", err)
			}
			defer mr.Close()
			addr = mr.Addr()
			logger.Warn("using embedded miniredis, sessions are lost on exit", "addr", addr)
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{addr},
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		defer rdb.Close()

		records := storage.NewRedis(rdb, portalCfg.Session.RedisPrefix, portalCfg.Session.RememberFor)
		if _, err := records.Ping(ctx); err != nil {
			return err
		}
		b.WithRedis(rdb).WithStorage(records)
		health = records

	case config.BackendSQLite:
		records, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer records.Close()
		b.WithStorage(records)
		health = records

	default:
		b.WithStorage(storage.NewMemory())
	}

	if portalCfg.Audit.Enabled {
		sink, closeSink, err := openAuditSink(cfg.Audit.Path, stdout)
		if err != nil {
			return err
		}
		defer closeSink()
		b.WithAuditSink(sink)
	}

	portal, err := b.Build()
	if err != nil {
		return err
	}
	defer portal.Close()

	for _, prefix := range portal.RoleMatrix().Prefixes() {
		logger.Info("guarded route", "prefix", prefix, "roles", portal.AllowedRoles(prefix).String())
	}

	opts := []web.Option{
		web.WithLogger(logger),
		web.WithMetricsHandler(prometheus.NewExporter(portal).Handler()),
	}
	if health != nil {
		opts = append(opts, web.WithHealthCheck(func(ctx context.Context) error {
			_, err := health.Ping(ctx)
			return err
		}))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           web.New(portal, opts...).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("hrdesk listening",
			"addr", cfg.Server.Addr,
			"storage", cfg.Storage.Backend,
			"idle_timeout", portalCfg.Session.IdleTimeout,
			"users", len(cfg.Users),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openAuditSink(path string, stdout io.Writer) (hrdesk.AuditSink, func(), error) {
	if path == "" || path == "-" {
		return hrdesk.NewJSONWriterSink(stdout), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return hrdesk.NewJSONWriterSink(f), func() { _ = f.Close() }, nil
}

func hashPassword(stdin *os.File, stdout, stderr io.Writer) error {
	var (
		pw  []byte
		err error
	)
	if term.IsTerminal(int(stdin.Fd())) {
		fmt.Fprint(stderr, "Password: ")
		pw, err = term.ReadPassword(int(stdin.Fd()))
		fmt.Fprintln(stderr)
	} else {
		var line string
		line, err = bufio.NewReader(stdin).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		pw = []byte(strings.TrimRight(line, "\r\n"))
	}
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	hasher, err := identity.NewArgon2(identity.DefaultHasherConfig())
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hash)
	return nil
}
