package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"skylark/config"
	"skylark/cron"
	"skylark/database"
	"skylark/database/repository"
	"skylark/handlers"
	"skylark/localstore"
	"skylark/middleware"
	"skylark/routes"
	"skylark/services/admin"
	"skylark/services/chat"
	"skylark/services/group"
	"skylark/services/notification"
	"skylark/services/session"
	"skylark/shell"
	"skylark/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadConfig()
	utils.InitializeLogger()
	logger := utils.GetLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.InitDB(ctx); err != nil {
		logger.Fatal("main: failed to connect to MongoDB", zap.Error(err))
	}
	repos := repository.NewMongoRepositories(database.Database())

	// Client-local state.
	var (
		stores      localstore.Factory
		redisClient *redis.Client
	)
	switch config.AppConfig.LocalStore {
	case "memory":
		logger.Warn("main: using in-memory local store; client sessions will not survive a restart")
		stores = localstore.MemoryFactory()
	default:
		if err := utils.InitLocalStore(); err != nil {
			logger.Fatal("main: failed to initialize local store", zap.Error(err))
		}
		redisClient = utils.GetLocalStoreClient()
		stores = localstore.RedisFactory(redisClient)
	}

	tokens, err := utils.NewClientTokens(config.AppConfig.JWTSecret)
	if err != nil {
		logger.Fatal("main: JWT_SECRET must be set", zap.Error(err))
	}

	// Push delivery.
	var (
		queue *asynq.Client
		fcm   *notification.FCMService
	)
	if config.AppConfig.PushEnabled {
		if err := utils.FirebaseInit(ctx); err != nil {
			logger.Fatal("main: failed to initialize Firebase", zap.Error(err))
		}
		fcm, err = notification.NewFCMService(utils.FCMClient, logger)
		if err != nil {
			logger.Fatal("main: failed to initialize FCM service", zap.Error(err))
		}
		queue = asynq.NewClient(cron.QueueRedisOpt())
		defer queue.Close()
	}

	// services.
	groupService := group.NewService(repos.Groups, repos.Messages, logger)
	chatService := chat.NewService(repos.Messages, groupService)
	deviceService := session.NewDeviceService(repos.Accounts)
	adminService := admin.NewAdminService(repos.Accounts, groupService, deviceService, logger)

	if username := config.AppConfig.BootstrapAdmin; username != "" {
		if err := adminService.BootstrapAdmin(ctx, username); err != nil {
			logger.Warn("main: failed to bootstrap admin", zap.String("username", username), zap.Error(err))
		}
	}

	feed := notification.NewFeed(repos.Messages, logger)
	deps := shell.Deps{
		Accounts: repos.Accounts,
		Groups:   repos.Groups,
		Messages: repos.Messages,
		Feed:     feed,
		SessionOptions: session.Options{
			MaxDevices: config.AppConfig.MaxDevices,
			BcryptCost: config.AppConfig.BcryptCost,
		},
		SummaryThreshold: config.AppConfig.MissedSummaryThreshold,
		Logger:           logger,
	}
	if queue != nil {
		deps.Queue = queue
	}
	registry := shell.NewRegistry(deps, stores)

	// Create the Gin router.
	router := gin.New()
	if err := router.SetTrustedProxies(config.AppConfig.TrustedProxies); err != nil {
		logger.Fatal("main: invalid TRUSTED_PROXIES", zap.Error(err))
	}
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware(config.AppConfig.MaxRequestsPerMin, logger))

	handlerBundle := &handlers.HandlerBundle{
		Tokens:        tokens,
		Registry:      registry,
		ClientHandler: handlers.NewClientHandler(tokens),
		AuthHandler:   handlers.NewAuthHandler(),
		DeviceHandler: handlers.NewDeviceHandler(deviceService),
		GroupHandler:  handlers.NewGroupHandler(groupService, chatService),
		AdminHandler:  handlers.NewAdminHandler(adminService),
		HealthHandler: handlers.NewHealthHandler(redisClient, database.MongoClient),
	}
	routes.RegisterRoutes(router, handlerBundle)

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	utils.StartHealthMonitor(ctx, 30*time.Second, redisClient, database.MongoClient)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feed.Run(gctx)
	})
	idle := config.AppConfig.ShellIdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	g.Go(func() error {
		registry.RunSweeper(gctx, time.Minute, idle)
		return nil
	})
	if fcm != nil {
		g.Go(func() error {
			return cron.RunAlertWorker(gctx, cron.QueueRedisOpt(), fcm, logger)
		})
	}
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("main: server is shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		registry.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("main: stopped with error", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.Close(closeCtx); err != nil {
		logger.Warn("main: failed to disconnect MongoDB", zap.Error(err))
	}
	logger.Info("main: server stopped gracefully")
}
