package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + IdempotencyHeader,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	s.app.Use(s.metricsMiddleware())

	s.app.Get("/api/health", s.handleHealth)
	if s.services.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.services.Metrics.Handler()))
	}

	api := s.app.Group("/api")
	protected := api.Use(s.authMiddleware())

	protected.Post("/documents", s.handleUpload)
	protected.Post("/documents/merge", s.handleMerge)
	protected.Get("/documents/:id", s.handleGetDocument)
	protected.Get("/documents/:id/pages", s.handleListPages)
	protected.Get("/documents/:id/children", s.handleListChildren)
	protected.Get("/documents/:id/download", s.handleDownload)
	protected.Put("/documents/:id/pipeline", s.handleSetPipeline)

	protected.Post("/documents/:id/lock", s.handleAcquireLock)
	protected.Post("/documents/:id/pages/delete", s.handleDeletePages)
	protected.Post("/documents/:id/pages/reorder", s.handleReorderPages)
	protected.Post("/documents/:id/split", s.handleSplit)

	protected.Post("/duplicates/check", s.handleCheckDuplicates)
	protected.Post("/documents/:id/duplicates/evaluate", s.handleEvaluateDuplicate)
	protected.Post("/documents/:id/duplicates/resolve", s.handleResolveDuplicate)

	protected.Get("/documents/:id/revisions", s.handleListRevisions)
	protected.Post("/documents/:id/revisions", s.handleCreateRevision)
	protected.Get("/documents/:id/revisions/:rid", s.handleGetRevision)
	protected.Post("/documents/:id/revisions/:rid/approve", s.handleApproveRevision)
	protected.Post("/documents/:id/revisions/:rid/supersede", s.handleSupersedeRevision)

	protected.Get("/review/start", s.handleReviewStart)
	protected.Get("/review/navigate", s.handleReviewNavigate)
}

func (s *Server) Start() error {
	return s.app.Listen(s.config.HTTPAddress())
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
