package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wakala/bulkpay/internal/bulkfile"
	"github.com/wakala/bulkpay/internal/domain"
	"github.com/wakala/bulkpay/internal/pipeline"
	"github.com/wakala/bulkpay/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	fileRepo     *repository.FileRepo
	batchRepo    *repository.BatchRepo
	rejectedRepo *repository.RejectedRepo
	orchestrator *pipeline.Orchestrator
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- IngestFile ---

// IngestRequest carries one deserialized bulk document plus the upload
// metadata the upstream transport would normally supply.
type IngestRequest struct {
	UserID     int64           `json:"user_id"`
	ResourceID string          `json:"resource_id"`
	FeatureID  string          `json:"feature_id"`
	CompanyID  int64           `json:"company_id"`
	CreatedBy  string          `json:"created_by"`
	Document   json.RawMessage `json:"document"`
}

func (h *Handlers) IngestFile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var req IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.CreatedBy == "" || req.ResourceID == "" || req.CompanyID == 0 {
		writeError(w, http.StatusBadRequest, "created_by, resource_id and company_id are required")
		return
	}

	doc, err := bulkfile.Decode(req.Document)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.fileRepo.GetByReference(r.Context(), doc.Header.FileReference)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if file == nil {
		file = &domain.FileUpload{
			FileReferenceID: doc.Header.FileReference,
			FileName:        doc.Header.FileName,
			ResourceID:      req.ResourceID,
			FeatureID:       req.FeatureID,
			CompanyID:       req.CompanyID,
			Status:          domain.FileStatusNew,
			CreatedBy:       req.CreatedBy,
		}
		if _, err := h.fileRepo.Insert(r.Context(), file); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else if file.Status.Terminal() {
		writeError(w, http.StatusConflict, "file already finalized as "+string(file.Status))
		return
	}

	result, err := h.orchestrator.Process(r.Context(), doc, req.UserID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ListFiles ---

func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.FileFilter{
		Status:    q.Get("status"),
		CompanyID: int64(parseIntDefault(q.Get("company_id"), 0)),
		From:      parseTime(q.Get("from")),
		To:        parseTime(q.Get("to")),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	files, total, err := h.fileRepo.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": total,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}

// --- GetFile ---

func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "ref is required")
		return
	}

	file, err := h.fileRepo.GetByReference(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if file == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	batches, err := h.batchRepo.BatchesByFile(r.Context(), file.FileUploadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file":    file,
		"batches": batches,
	})
}

// --- ListFileRejections ---

func (h *Handlers) ListFileRejections(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	file, err := h.fileRepo.GetByReference(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if file == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	rejections, err := h.rejectedRepo.ListByFile(r.Context(), file.FileUploadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_reference_id": file.FileReferenceID,
		"rejections":        rejections,
		"total":             len(rejections),
	})
}

// --- ListBatchRecords ---

func (h *Handlers) ListBatchRecords(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	batch, err := h.batchRepo.GetByBankReference(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batch == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	records, err := h.batchRepo.RecordsByBatch(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch":   batch,
		"records": records,
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fileRepo.GetDashboardStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files": map[string]int{
			"total":         stats.TotalFiles,
			"success":       stats.Success,
			"partial":       stats.Partial,
			"upload_failed": stats.UploadFailed,
			"rejected":      stats.Rejected,
		},
		"batches": stats.TotalBatches,
		"records": stats.TotalRecords,
	})
}
