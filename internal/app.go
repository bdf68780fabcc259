package internal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postsvc/internal/feed"
	"postsvc/internal/post"
)

func NewAPI(repository *post.Repository, feedRepository feed.FeedRepository) *fiber.App {
	app := fiber.New()

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessProbe: func(c *fiber.Ctx) bool {
			return true
		},
		LivenessEndpoint: "/livez",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return repository.HealthCheck(c.UserContext()) == nil
		},
		ReadinessEndpoint: "/readyz",
	}))
	app.Use(logger.New())

	usecase := post.NewUseCase(repository)
	h := post.NewRouteHandler(usecase, repository)
	h.Register(app.Group("/posts"))

	app.Get("/stats", h.Stats)

	if feedRepository != nil {
		feedHandler := feed.NewRouteHandler(feedRepository)
		app.Get("/feed", feedHandler.Get)
	}

	return app
}
