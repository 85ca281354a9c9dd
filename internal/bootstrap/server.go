package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	app "github.com/mohammadpnp/alumni-import/internal/application/alumni"
	"github.com/mohammadpnp/alumni-import/internal/config"
	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/auth"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/cache"
	infrafile "github.com/mohammadpnp/alumni-import/internal/infrastructure/file"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/repository"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/spreadsheet"
	httpecho "github.com/mohammadpnp/alumni-import/internal/interfaces/http/echo"
)

// Infrastructure holds the connections opened by the command. Redis is optional.
type Infrastructure struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Pool     *pgxpool.Pool
	Redis    *goredis.Client
	Notifier domain.Notifier
}

type Application struct {
	Server *echo.Echo
	Worker *app.ImportWorker
}

func NewApplication(infra Infrastructure) (*Application, error) {
	cfg := infra.Config

	blobs, err := infrafile.NewLocalBlobStore(cfg.Blob.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("create blob store: %w", err)
	}

	importJobRepo := repository.NewImportJobRepository(infra.DB)
	importRowRepo := repository.NewImportRowRepository(infra.DB, infra.Pool)
	accessPolicy := repository.NewAccessPolicyRepository(infra.DB)

	var colleges domain.CollegeRepository = repository.NewCollegeRepository(infra.DB)
	if infra.Redis != nil {
		colleges = cache.NewCollegeContextCache(colleges, infra.Redis, cfg.Redis.TTL, infra.Logger)
	}

	worker := app.NewImportWorker(app.ImportWorkerDeps{
		Jobs:      importJobRepo,
		Rows:      importRowRepo,
		Colleges:  colleges,
		Blobs:     blobs,
		Parser:    spreadsheet.NewParser(cfg.Import.MaxRows),
		Committer: repository.NewAlumniCommitter(infra.DB),
		Notifier:  infra.Notifier,
	}, app.ImportWorkerConfig{
		Workers:           cfg.Import.Workers,
		PageSize:          cfg.Import.PageSize,
		PollInterval:      cfg.Import.PollInterval,
		LeaseDuration:     cfg.Import.LeaseDuration,
		HeartbeatInterval: cfg.Import.HeartbeatInterval,
		NotifyTimeout:     cfg.Import.NotifyTimeout,
	}, infra.Logger)

	importHandler := httpecho.NewImportHandler(httpecho.ImportUseCases{
		Start:  app.NewStartImport(importJobRepo, accessPolicy, blobs, worker, infra.Logger),
		Get:    app.NewGetImport(importJobRepo, accessPolicy),
		Retry:  app.NewRetryImport(importJobRepo, accessPolicy, worker),
		Cancel: app.NewCancelImport(importJobRepo, accessPolicy),
		Rows:   app.NewListImportRows(importJobRepo, importRowRepo, accessPolicy),
	}, infra.Logger)

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	server := NewHTTPServer(cfg.Server, infra.Logger, importHandler, httpecho.JWTAuth(tokens))

	return &Application{Server: server, Worker: worker}, nil
}

func NewHTTPServer(cfg config.ServerConfig, logger *zap.Logger, importHandler *httpecho.ImportHandler, authMiddleware echo.MiddlewareFunc) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	bodyLimit := cfg.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "20M"
	}

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(httpecho.RequestLogger(logger))
	server.Use(middleware.BodyLimit(bodyLimit))

	httpecho.RegisterRoutes(server, importHandler, authMiddleware)

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	server.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return server
}
