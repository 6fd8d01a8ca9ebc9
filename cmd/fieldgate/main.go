package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/fieldgate/fieldgate/cmd/fieldgate/cli"
	"github.com/fieldgate/fieldgate/internal/app"
	"github.com/fieldgate/fieldgate/internal/auth"
	"github.com/fieldgate/fieldgate/internal/fields"
	"github.com/fieldgate/fieldgate/internal/fields/values"
	"github.com/fieldgate/fieldgate/internal/media"
	"github.com/fieldgate/fieldgate/internal/observability"
	"github.com/fieldgate/fieldgate/internal/platform/db"
	"github.com/fieldgate/fieldgate/internal/rbac"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
	"github.com/fieldgate/fieldgate/internal/users"
	"github.com/fieldgate/fieldgate/jobs"

	"github.com/google/uuid"
)

// userDirectory exposes the slice of a user the field value state machine
// needs without importing the users package from there.
type userDirectory struct {
	repo *users.Repository
}

func (d userDirectory) Find(ctx context.Context, id uuid.UUID) (values.UserRef, error) {
	u, err := d.repo.Get(ctx, id)
	if err != nil {
		return values.UserRef{}, err
	}
	return values.UserRef{ID: u.ID, RoleID: u.RoleID}, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCommand(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())

	mediaStore, err := media.NewStore(cfg.MediaDir)
	if err != nil {
		logger.Error("init media store", slog.Any("error", err))
		os.Exit(1)
	}

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(jobsClient)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo)
	hierarchy := roles.NewHierarchy(rolesRepo)

	rbacRepo := rbac.NewRepository(pool)
	rbacService := rbac.NewService(rbacRepo)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(logger, usersRepo, rolesService, hierarchy, notifier)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(logger, authRepo, usersRepo, notifier)
	authMiddleware := auth.NewMiddleware(logger, sessionManager, usersRepo)
	authHandler := auth.NewHandler(logger, authService, usersService, sessionManager)

	rbacMiddleware := rbac.Middleware{Service: rbacService, Principal: authMiddleware.Principal, Logger: logger}
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, authMiddleware.RequireElevated)

	rolesHandler := roles.NewHandler(logger, rolesService, hierarchy, authMiddleware)
	usersHandler := users.NewHandler(logger, usersService, authMiddleware, rbacMiddleware.RequireTableMethod, mediaStore)

	fieldsRepo := fields.NewRepository(pool)
	fieldsService := fields.NewService(fieldsRepo, rolesService)
	fieldsHandler := fields.NewHandler(logger, fieldsService, authMiddleware)

	valuesRepo := values.NewRepository(pool)
	valuesService := values.NewService(valuesRepo, fieldsService, userDirectory{repo: usersRepo}, hierarchy)
	valuesHandler := values.NewHandler(logger, valuesService, authMiddleware, mediaStore)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Session:            authMiddleware.WithSession,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		UsersHandler:       usersHandler,
		ValuesHandler:      valuesHandler,
		FieldsHandler:      fieldsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		_ = jobsCLI.Close()
	}()

	if len(args) == 0 {
		return fmt.Errorf("usage: fieldgate jobs <stats|trigger TASK>")
	}
	switch args[0] {
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	case "trigger":
		if len(args) < 2 {
			return fmt.Errorf("usage: fieldgate jobs trigger TASK")
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	default:
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}
