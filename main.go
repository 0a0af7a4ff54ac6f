package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"hookrunner-server/capability"
	"hookrunner-server/config"
	"hookrunner-server/handlers"
	"hookrunner-server/middleware"
	"hookrunner-server/models"
	"hookrunner-server/sandbox"
	"hookrunner-server/services"
)

const projectURL = "https://github.com/hookrunner/hookrunner-server"

// @title HookRunner API
// @version 1.0
// @description Multi-tenant webhook automation host: clients register handler code at a URI, inbound events run it in a sandbox
// @host localhost:17760
// @BasePath /
func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	// Source store (local or S3) holds handler source text
	sourceStore, err := services.NewSourceStore(cfg.StorageType, cfg.StoragePath)
	if err != nil {
		log.Fatal("failed to initialize source store", zap.Error(err))
	}
	log.Info("source store initialized",
		zap.String("type", cfg.StorageType),
		zap.String("path", cfg.StoragePath))

	// Postgres is the source of truth for handler and API key records
	store, err := services.NewPostgresStore(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, sourceStore)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("failed to initialize database schema", zap.Error(err))
	}
	log.Info("database schema initialized")

	keys, err := store.LoadKeys(ctx)
	if err != nil {
		log.Fatal("failed to load api keys", zap.Error(err))
	}
	if len(keys) == 0 {
		log.Warn("no api keys loaded; every upsert will be rejected")
	}
	guard := services.NewAuthGuard(keys)

	redisService := services.NewRedisService(cfg.RedisHost, cfg.RedisPort, log)
	if err := redisService.Ping(ctx); err != nil {
		log.Warn("redis unreachable; failure history disabled until it recovers", zap.Error(err))
	}

	// Capability integrations share an X-Ray instrumented HTTP client
	httpClient := middleware.GetXRayHTTPClient()
	slack := capability.NewSlackClient(cfg.SlackBaseURL, cfg.SlackToken, httpClient)
	github := capability.NewGithubClient(cfg.GithubBaseURL, cfg.GithubToken, httpClient)
	bridge := capability.NewBridge(slack, github, log)

	executor := sandbox.NewExecutor(bridge, sandbox.Budget{
		Deadline:        cfg.HandlerDeadline,
		MaxCallDepth:    cfg.MaxCallDepth,
		MaxSourceBytes:  cfg.MaxSourceBytes,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		MaxResultBytes:  cfg.MaxResultBytes,
	}, log)

	registry := services.NewRegistry(store, guard, executor, log)
	if err := registry.LoadFromStore(ctx); err != nil {
		log.Warn("unable to load saved handlers", zap.Error(err))
	}

	dispatcher := services.NewDispatcher(registry, executor, redisService, log)

	syncer := services.NewRegistrySyncer(registry, store, cfg.SyncInterval, log)
	syncer.Start()
	defer syncer.Stop()

	api := handlers.NewHandlerAPI(registry, dispatcher, guard, redisService, log)
	slackEvents := handlers.NewSlackEventsHandler(dispatcher, slack, log)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName: "HookRunner",
	})

	// Middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(middleware.XRayMiddleware())

	// Health endpoints
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "UP"})
	})

	// Anyone curious about the host itself belongs at the project page
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect(projectURL, fiber.StatusFound)
	})

	// Handler management and dispatch
	app.Post("/upsert_handler", api.Upsert)
	app.Post("/find_handler", api.Find)
	app.Post("/list_handlers", api.List)
	app.Post("/verify_key", api.VerifyKey)
	app.Post("/h/:uri", api.Invoke)
	app.Get("/h/:uri/last_error", api.LastError)
	app.Post("/slack_events", slackEvents.HandleEvent)

	// Everything else is a miss, answered in the envelope shape
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(models.Failure("no such endpoint: " + c.Path()))
	})

	log.Info("hookrunner starting",
		zap.String("port", cfg.ServerPort),
		zap.String("db", cfg.DBHost),
		zap.String("redis", cfg.RedisHost))
	log.Fatal("server exited", zap.Error(app.Listen(":"+cfg.ServerPort)))
}
