package server

import (
	"boston-tracker/internal/auth"
	"boston-tracker/internal/config"
	"boston-tracker/internal/stream"
	"boston-tracker/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	supervisorOnly := auth.RequireRole(auth.RoleSupervisor)

	tripCfg := trip.Config{
		MinValidDistanceM:     s.Cfg.EngineMinValidDistanceM,
		MaxReasonableSpeedKmh: s.Cfg.EngineMaxReasonableSpeedKmh,
	}

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB),
		jwtMiddleware, supervisorOnly)
	trip.RegisterRoutes(s.App.Group("/trips"), trip.NewService(s.DB, s.Stream, tripCfg), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
