package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	appControllers "github.com/Bluerat1/uniclaim-server/internal/app/controllers"
	appMigrations "github.com/Bluerat1/uniclaim-server/internal/app/migrations"
	appRepos "github.com/Bluerat1/uniclaim-server/internal/app/repositories"
	appRoutes "github.com/Bluerat1/uniclaim-server/internal/app/routes"
	appServices "github.com/Bluerat1/uniclaim-server/internal/app/services"
	"github.com/Bluerat1/uniclaim-server/internal/config"
	"github.com/Bluerat1/uniclaim-server/internal/db"
	appMiddleware "github.com/Bluerat1/uniclaim-server/internal/middleware"
	pkgAuth "github.com/Bluerat1/uniclaim-server/internal/pkg/auth"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/helpers"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/logger"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/mediastore"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/notify"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/storeops"
	"github.com/Bluerat1/uniclaim-server/internal/pkg/websocket"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	AuthService            appServices.AuthService
	PostService            appServices.PostService
	ConversationService    appServices.ConversationService
	RequestService         appServices.RequestService
	AuthController         *appControllers.AuthController
	PostController         *appControllers.PostController
	ConversationController *appControllers.ConversationController
	RequestController      *appControllers.RequestController
	AuthMiddleware         *appMiddleware.AuthMiddleware
	Repos                  *appRepos.Repositories
	JWTService             *pkgAuth.JWTService
	MediaStore             *mediastore.Cloudinary
	QuotaMonitor           *storeops.QuotaMonitor
	Dispatcher             *notify.Dispatcher
	Hub                    *websocket.Hub
	WSHandler              *websocket.Handler
	Logger                 zerolog.Logger
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger() (*config.Config, zerolog.Logger, error) {
	configPath := filepath.Join("configs", "config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.LogLevel(strings.ToLower(cfg.Logging.Level))
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})

	lgr := log.Logger
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase establishes the database connection and runs migrations.
func SetupDatabase(cfg *config.Config, lgr zerolog.Logger) (*pgxpool.Pool, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	dbPool := database.Pool

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbPool.Ping(ctx); err != nil {
		lgr.Error().Err(err).Msg("Failed to ping database")
		dbPool.Close()
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(dbPool)

	migrationsDir := "migrations"
	if _, err := os.Stat(migrationsDir); os.IsNotExist(err) {
		lgr.Error().Str("path", migrationsDir).Msg("Migrations directory not found")
		return nil, fmt.Errorf("migrations directory not found at %s: %w", migrationsDir, err)
	}

	if err := migrator.MigrateFromDirectory(migrationsDir); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}

	lgr.Info().Msg("Database migrations successfully applied.")
	return dbPool, nil
}

// BuildDependencies initializes application repositories, services, and controllers.
func BuildDependencies(cfg *config.Config, dbPool *pgxpool.Pool, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr}

	deps.Repos = appRepos.NewRepositories(dbPool)

	media, err := mediastore.NewCloudinary(mediastore.Config{
		CloudName: cfg.Cloudinary.CloudName,
		APIKey:    cfg.Cloudinary.APIKey,
		APISecret: cfg.Cloudinary.APISecret,
		Folder:    cfg.Cloudinary.Folder,
	}, lgr)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to initialize media store")
		return nil, fmt.Errorf("failed to initialize media store: %w", err)
	}
	deps.MediaStore = media

	deps.QuotaMonitor = storeops.NewQuotaMonitor(cfg.Quota.ErrorThreshold, cfg.QuotaErrorWindow(), lgr)
	ops := storeops.NewRunner(deps.QuotaMonitor, lgr)

	pusher := notify.NewExpoPusher(cfg.Notifications.ExpoPushURL, lgr)
	deps.Dispatcher = notify.NewDispatcher(deps.Repos.UserRepository, pusher, cfg.Notifications.QueueSize, lgr)

	deps.Hub = websocket.NewHub(lgr)
	deps.WSHandler = websocket.NewHandler(deps.Hub, deps.Repos.ConversationRepository, lgr)

	deps.JWTService = pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:       cfg.JWT.Secret,
		AccessTokenExp:  helpers.ParseDuration(cfg.JWT.AccessTokenExpiration, 1*time.Hour),
		RefreshTokenExp: helpers.ParseDuration(cfg.JWT.RefreshTokenExpiration, 720*time.Hour),
		TokenIssuer:     cfg.JWT.Issuer,
	})

	policy := appServices.ConversationPolicy{
		MessageCap: cfg.Conversation.MessageCap,
		EnforceCap: cfg.Conversation.EnforceCap,
	}

	deps.AuthService = appServices.NewAuthService(
		deps.Repos.UserRepository,
		deps.Repos.ConversationRepository,
		media,
		deps.JWTService,
		ops,
		lgr,
	)
	deps.PostService = appServices.NewPostService(
		deps.Repos.PostRepository,
		media,
		ops,
		cfg.Posts.ExpiryDays,
		lgr,
	)
	deps.ConversationService = appServices.NewConversationService(
		deps.Repos.ConversationRepository,
		deps.Repos.MessageRepository,
		deps.Repos.PostRepository,
		deps.Repos.UserRepository,
		media,
		ops,
		deps.Dispatcher,
		policy,
		lgr,
	)
	deps.RequestService = appServices.NewRequestService(
		deps.Repos.ConversationRepository,
		deps.Repos.MessageRepository,
		deps.Repos.PostRepository,
		media,
		ops,
		deps.Dispatcher,
		policy,
		lgr,
	)

	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.JWTService)

	deps.AuthController = appControllers.NewAuthController(deps.AuthService, lgr)
	deps.PostController = appControllers.NewPostController(deps.PostService, lgr)
	deps.ConversationController = appControllers.NewConversationController(deps.ConversationService, deps.Hub, lgr)
	deps.RequestController = appControllers.NewRequestController(deps.RequestService, deps.Hub, lgr)

	return deps, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if strings.ToLower(cfg.Server.Mode) == "production" {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	router := gin.Default()

	appRoutes.SetupRouter(router,
		deps.AuthController,
		deps.PostController,
		deps.ConversationController,
		deps.RequestController,
		deps.WSHandler,
		deps.AuthMiddleware,
	)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "status": "success"})
	})

	return router
}
