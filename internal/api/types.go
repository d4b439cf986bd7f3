package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/config"
	"github.com/gmsas95/docdesk/internal/duplicates"
	"github.com/gmsas95/docdesk/internal/locking"
	"github.com/gmsas95/docdesk/internal/metrics"
	"github.com/gmsas95/docdesk/internal/pages"
	"github.com/gmsas95/docdesk/internal/pdfpages"
	"github.com/gmsas95/docdesk/internal/review"
	"github.com/gmsas95/docdesk/internal/revision"
	"github.com/gmsas95/docdesk/internal/store"
)

// Services are the processing components the API exposes
type Services struct {
	Pages      *pages.Service
	Locks      *locking.Manager
	Duplicates *duplicates.Detector
	Revisions  *revision.Manager
	Review     *review.Navigator
	Metrics    *metrics.Metrics
}

type Server struct {
	app      *fiber.App
	config   *config.Config
	services Services
	logger   *zap.Logger
}

func New(cfg *config.Config, services Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	if bodyLimit <= 0 {
		bodyLimit = fiber.DefaultBodyLimit
	}

	s := &Server{
		config:   cfg,
		services: services,
		logger:   logger,
	}
	s.app = fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             bodyLimit,
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.setupRoutes()
	return s
}

// App exposes the fiber app, mostly for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

// ==================== Request Bodies ====================

type lockRequest struct {
	ExpectedVersion *int64 `json:"expected_version"`
}

type deletePagesRequest struct {
	PageNumbers     []int `json:"page_numbers"`
	ExpectedVersion int64 `json:"expected_version"`
}

type reorderPagesRequest struct {
	NewOrder        []int `json:"new_order"`
	ExpectedVersion int64 `json:"expected_version"`
}

type mergeRequest struct {
	DocumentIDs []string `json:"document_ids"`
	FileName    string   `json:"file_name"`
}

type splitRequest struct {
	Ranges          []pdfpages.Range `json:"ranges"`
	ExpectedVersion int64            `json:"expected_version"`
}

type pipelineRequest struct {
	Status store.PipelineStatus `json:"status"`
}

type checkDuplicatesRequest struct {
	FileHashes []string `json:"file_hashes"`
	CompanyID  *string  `json:"company_id"`
}

type resolveDuplicateRequest struct {
	Status store.DuplicateStatus `json:"status"`
}

// ==================== Responses ====================

type errorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type pagesResponse struct {
	DocumentID string               `json:"document_id"`
	Pages      []store.DocumentPage `json:"pages"`
}
