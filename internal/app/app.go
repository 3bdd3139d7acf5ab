package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"notiontools/dashboard-gateway/internal/audit"
	"notiontools/dashboard-gateway/internal/auth"
	"notiontools/dashboard-gateway/internal/client/httpclient"
	"notiontools/dashboard-gateway/internal/config"
	"notiontools/dashboard-gateway/internal/guard"
	"notiontools/dashboard-gateway/internal/httpserver"
	"notiontools/dashboard-gateway/internal/notion"
	"notiontools/dashboard-gateway/internal/observability"
	"notiontools/dashboard-gateway/internal/weread"
)

type App struct {
	cfg    config.Config
	log    *slog.Logger
	db     *sql.DB
	redis  *redis.Client
	auth   *auth.Service
	server *httpserver.Server
}

// New wires the stores, services and HTTP server from cfg. On error every
// connection opened so far is closed.
func New(cfg config.Config, logger *slog.Logger, version string) (_ *App, err error) {
	if logger == nil {
		logger = observability.NewLogger(cfg.LogLevel)
	}
	a := &App{cfg: cfg, log: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.DatabaseURL != "" {
		a.db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := a.db.Ping(); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
	}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	userStore, sessionStore, err := a.authStores()
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}
	a.auth, err = auth.NewService(userStore, auth.ServiceConfig{
		Tokens:           tokens,
		SessionStateFile: cfg.Auth.SessionStateFile,
		SessionStore:     sessionStore,
	})
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	if err := a.auth.LoadSessionState(); err != nil {
		return nil, fmt.Errorf("load auth session state: %w", err)
	}

	seeds, err := auth.LoadSeedUsers(cfg.Auth.SeedUsersFile)
	if err != nil {
		return nil, err
	}
	created, err := auth.Seed(userStore, seeds)
	if err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}
	if created > 0 {
		logger.Info("seed users created", "count", created)
	}

	var tasks weread.TaskStore
	if a.db != nil {
		tasks, err = weread.NewPGService(a.db)
		if err != nil {
			return nil, fmt.Errorf("create postgres signin task store: %w", err)
		}
	} else {
		tasks, err = weread.NewServiceWithFile(cfg.SigninStateFile)
		if err != nil {
			return nil, fmt.Errorf("create signin task store: %w", err)
		}
	}

	notionClient := notion.NewClient(httpclient.New(httpclient.Config{
		Timeout: cfg.Notion.Timeout,
		Logger:  logger,
	}), cfg.Notion.URL)

	metrics := observability.NewMetrics(a.auth.ActiveSessions)
	guardOpts := []guard.Option{guard.WithRecorder(metrics), guard.WithLogger(logger)}
	if cfg.Auth.GuardVerifyTokens {
		guardOpts = append(guardOpts, guard.WithVerifier(tokens))
	}

	a.server = httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:        a.auth,
		SigninTasks: tasks,
		Notion:      notionClient,
		Audit:       audit.NewLogger(cfg.AuditLogFile),
		Guard:       guard.New(guardOpts...),
		Metrics:     metrics,
		Logger:      logger,
		Cookie: httpserver.CookieConfig{
			Secure: cfg.Production(),
			MaxAge: tokens.TTL(),
		},
		Ready:              a.ready,
		Version:            version,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		FrontendDistDir:    cfg.FrontendDistDir,
	})

	return a, nil
}

// authStores picks the user and session backends. Redis takes sessions when
// configured, then Postgres, then the state file inside the auth service.
func (a *App) authStores() (auth.UserStore, auth.SessionStore, error) {
	var (
		users    auth.UserStore
		sessions auth.SessionStore
		err      error
	)
	if a.db != nil {
		users, err = auth.NewPostgresUserStore(a.db)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres user store: %w", err)
		}
		sessions, err = auth.NewPostgresSessionStore(a.db)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres session store: %w", err)
		}
	} else {
		users, err = auth.NewFileUserStore(a.cfg.Auth.UserStateFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create user store: %w", err)
		}
	}
	if a.redis != nil {
		sessions, err = auth.NewRedisSessionStore(a.redis)
		if err != nil {
			return nil, nil, fmt.Errorf("create redis session store: %w", err)
		}
	}
	return users, sessions, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go a.pruneSessions(pruneCtx)

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr, "env", a.cfg.Env)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

func (a *App) pruneSessions(ctx context.Context) {
	interval := a.cfg.Auth.PruneInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.auth.PruneExpired()
			if err != nil {
				a.log.Warn("prune expired sessions failed", "err", err)
				continue
			}
			if n > 0 {
				a.log.Debug("pruned expired sessions", "count", n)
			}
		}
	}
}
