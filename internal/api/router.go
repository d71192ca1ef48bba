package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wakala/bulkpay/internal/pipeline"
	"github.com/wakala/bulkpay/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	fileRepo *repository.FileRepo,
	batchRepo *repository.BatchRepo,
	rejectedRepo *repository.RejectedRepo,
	orchestrator *pipeline.Orchestrator,
) http.Handler {
	h := &Handlers{
		fileRepo:     fileRepo,
		batchRepo:    batchRepo,
		rejectedRepo: rejectedRepo,
		orchestrator: orchestrator,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion.
		r.Post("/files/ingest", h.IngestFile)

		// Files.
		r.Get("/files", h.ListFiles)
		r.Get("/files/{ref}", h.GetFile)
		r.Get("/files/{ref}/rejections", h.ListFileRejections)

		// Batches.
		r.Get("/batches/{ref}/records", h.ListBatchRecords)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
