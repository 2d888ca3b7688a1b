package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"printbridge/internal/api/middleware"
	"printbridge/internal/artifact"
	"printbridge/internal/config"
	"printbridge/internal/db"
	"printbridge/internal/job"
	"printbridge/internal/qr"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	// How many times to re-roll a job id that is already taken before
	// giving up. Collisions are rare; exhausting this means something
	// is badly wrong.
	maxIDAttempts = 5

	// Headroom on top of max_file_size for multipart boundaries and
	// the form fields when capping the upload body.
	uploadFormOverhead = 64 << 10
)

var pdfMagic = []byte("%PDF")

type JobHandler struct {
	jobs      *db.Jobs
	artifacts *artifact.Store
	storage   config.StorageConfig
	printing  config.PrintingConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewJobHandler(jobs *db.Jobs, artifacts *artifact.Store, storage config.StorageConfig, printing config.PrintingConfig, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		artifacts: artifacts,
		storage:   storage,
		printing:  printing,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"status": "error", "message": message})
}

// Upload accepts a multipart PDF submission and creates a Pending job.
// The body is capped before parsing so an oversized upload is cut off
// at the size ceiling instead of being read to completion.
func (h *JobHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.storage.MaxFileSize+uploadFormOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("file size exceeds %d byte limit", h.storage.MaxFileSize))
			return
		}
		respondError(c, http.StatusBadRequest, "file is required")
		return
	}

	if err := h.validatePDF(header); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	paperSize := c.PostForm("paper_size")
	colorMode := c.PostForm("color_mode")
	copies, err := strconv.Atoi(c.PostForm("copies"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "copies must be an integer")
		return
	}
	if err := job.ValidateOptions(paperSize, colorMode, copies); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	pageRange := c.PostForm("page_range")
	if pageRange == "" {
		pageRange = job.DefaultPageRange
	}
	printerName := c.PostForm("printer_name")
	if printerName == "" {
		printerName = h.printing.DefaultPrinter
	}

	now := h.now()
	ctx := c.Request.Context()

	jobID, err := h.uniqueJobID(c)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to assign job id")
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to read uploaded file")
		return
	}
	defer f.Close()

	relPath, size, err := h.artifacts.Save(f, now)
	if err != nil {
		h.logger.Error("artifact save failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "failed to store file")
		return
	}

	qrCode, err := qr.DataURI(jobID, header.Filename, now)
	if err != nil {
		// Informational only; the job proceeds without it.
		h.logger.Error("qr code generation failed", "job_id", jobID, "error", err)
		qrCode = ""
	}

	j := &job.PrintJob{
		JobID:       jobID,
		Filename:    header.Filename,
		Filepath:    relPath,
		FileSize:    size,
		PaperSize:   paperSize,
		ColorMode:   colorMode,
		PageRange:   pageRange,
		Copies:      copies,
		PrinterName: printerName,
		Status:      job.StatusPending,
		QRCode:      qrCode,
		UploadedAt:  now,
	}

	if err := h.jobs.Create(ctx, j); err != nil {
		if derr := h.artifacts.Delete(relPath); derr != nil && !errors.Is(derr, artifact.ErrNotFound) {
			h.logger.Error("orphan artifact cleanup failed", "job_id", jobID, "error", derr)
		}
		h.logger.Error("job create failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to create print job")
		return
	}

	h.logger.Info("job created", "job_id", jobID, "filename", j.Filename, "size", size)

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Print job created successfully",
		"data": gin.H{
			"job_id":      j.JobID,
			"filename":    j.Filename,
			"status":      j.Status,
			"qr_code":     j.QRCode,
			"uploaded_at": j.UploadedAt,
		},
	})
}

// validatePDF applies all three content checks plus the size ceiling.
// Extension and MIME alone are spoofable, so the file signature is
// always verified too.
func (h *JobHandler) validatePDF(header *multipart.FileHeader) error {
	if strings.ToLower(filepath.Ext(header.Filename)) != ".pdf" {
		return fmt.Errorf("only PDF files are allowed")
	}

	if ct := header.Header.Get("Content-Type"); ct != "application/pdf" {
		return fmt.Errorf("invalid file type")
	}

	if header.Size > h.storage.MaxFileSize {
		return fmt.Errorf("file size exceeds %d byte limit", h.storage.MaxFileSize)
	}

	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to read uploaded file")
	}
	defer f.Close()

	magic := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, magic); err != nil || !bytes.Equal(magic, pdfMagic) {
		return fmt.Errorf("invalid PDF file")
	}
	return nil
}

func (h *JobHandler) uniqueJobID(c *gin.Context) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := job.GenerateID(h.now())
		if err != nil {
			return "", err
		}
		exists, err := h.jobs.JobIDExists(c.Request.Context(), id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("exhausted job id attempts")
}

// Pending lists all Pending jobs, oldest first, for the polling agent.
func (h *JobHandler) Pending(c *gin.Context) {
	jobs, err := h.jobs.ListByStatus(c.Request.Context(), job.StatusPending)
	if err != nil {
		h.logger.Error("pending list failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list pending jobs")
		return
	}
	if jobs == nil {
		jobs = []*job.PrintJob{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": jobs})
}

type updateRequest struct {
	Status       *int       `json:"status"`
	ProcessedAt  *time.Time `json:"processed_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ErrorMessage *string    `json:"error_message"`
}

// Update applies a restricted-field update. Status changes are routed
// through the lifecycle engine and persisted with a compare-and-swap
// on the previous status, so an arbitrary supplied status value can
// never corrupt the state machine.
func (h *JobHandler) Update(c *gin.Context) {
	jobID := c.Param("job_id")

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	j, err := h.jobs.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Print job not found")
			return
		}
		h.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if req.Status == nil {
		if req.ErrorMessage == nil {
			respondError(c, http.StatusBadRequest, "no updatable fields supplied")
			return
		}
		if err := h.jobs.UpdateError(ctx, jobID, *req.ErrorMessage); err != nil {
			h.logger.Error("error message update failed", "job_id", jobID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to update job")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Job updated successfully"})
		return
	}

	target, err := job.ParseStatus(*req.Status)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	errMsg := ""
	if req.ErrorMessage != nil {
		errMsg = *req.ErrorMessage
	}

	prev := j.Status
	if err := job.Transition(j, target, h.now(), errMsg); err != nil {
		respondError(c, http.StatusConflict, err.Error())
		return
	}

	// The agent may report its own clock for the transition moment.
	if req.ProcessedAt != nil && target == job.StatusProcessing {
		j.ProcessedAt = req.ProcessedAt
	}
	if req.CompletedAt != nil && target == job.StatusPrinted {
		j.CompletedAt = req.CompletedAt
	}

	if err := h.jobs.UpdateStatus(ctx, j, prev); err != nil {
		if errors.Is(err, job.ErrConflict) {
			respondError(c, http.StatusConflict, "job status changed concurrently")
			return
		}
		h.logger.Error("status update failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to update job status")
		return
	}

	h.logger.Info("job status updated", "job_id", jobID, "from", prev.String(), "to", target.String())

	if target == job.StatusPrinted && h.storage.DeleteAfterPrint {
		if err := h.artifacts.Delete(j.Filepath); err != nil && !errors.Is(err, artifact.ErrNotFound) {
			// Best effort; the job is already Printed.
			h.logger.Error("artifact delete failed", "job_id", jobID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Job status updated successfully"})
}

// Status returns one job with its human-readable status text.
func (h *JobHandler) Status(c *gin.Context) {
	jobID := c.Param("job_id")

	j, err := h.jobs.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Print job not found")
			return
		}
		h.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"job_id":        j.JobID,
			"filename":      j.Filename,
			"status":        j.Status,
			"status_text":   j.Status.String(),
			"uploaded_at":   j.UploadedAt,
			"processed_at":  j.ProcessedAt,
			"completed_at":  j.CompletedAt,
			"error_message": j.ErrorMessage,
		},
	})
}

// History returns a filtered, paginated listing, newest upload first.
func (h *JobHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	filter := db.HistoryFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if v := c.Query("status"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, "status must be an integer")
			return
		}
		status, err := job.ParseStatus(code)
		if err != nil {
			respondError(c, http.StatusBadRequest, fmt.Sprintf("unknown status code %d", code))
			return
		}
		filter.Status = status
	}

	if v := c.Query("from_date"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			respondError(c, http.StatusBadRequest, "from_date must be YYYY-MM-DD")
			return
		}
		filter.FromDate = &t
	}
	if v := c.Query("to_date"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			respondError(c, http.StatusBadRequest, "to_date must be YYYY-MM-DD")
			return
		}
		endOfDay := t.Add(24*time.Hour - time.Second)
		filter.ToDate = &endOfDay
	}

	jobs, total, err := h.jobs.History(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("history query failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	totalPages := (total + limit - 1) / limit

	formatted := make([]gin.H, 0, len(jobs))
	for _, j := range jobs {
		formatted = append(formatted, gin.H{
			"job_id":       j.JobID,
			"filename":     j.Filename,
			"status":       j.Status,
			"status_text":  j.Status.String(),
			"uploaded_at":  j.UploadedAt,
			"completed_at": j.CompletedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"jobs": formatted,
			"pagination": gin.H{
				"current_page":   page,
				"total_pages":    totalPages,
				"total_items":    total,
				"items_per_page": limit,
			},
		},
	})
}

// Download streams the stored artifact to the agent.
func (h *JobHandler) Download(c *gin.Context) {
	jobID := c.Param("job_id")

	j, err := h.jobs.GetByJobID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Print job not found")
			return
		}
		h.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	path, err := h.artifacts.Path(j.Filepath)
	if err != nil || !h.artifacts.Exists(j.Filepath) {
		respondError(c, http.StatusNotFound, "Artifact not found")
		return
	}

	c.FileAttachment(path, j.Filename)
}

// Delete removes a job and its artifact, but only while it is still
// Pending. Jobs claimed by the worker are never deleted underneath it.
func (h *JobHandler) Delete(c *gin.Context) {
	jobID := c.Param("job_id")

	ctx := c.Request.Context()
	j, err := h.jobs.GetByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Print job not found")
			return
		}
		h.logger.Error("job lookup failed", "job_id", jobID, "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to get job")
		return
	}

	if err := h.jobs.DeletePending(ctx, jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrConflict):
			respondError(c, http.StatusConflict, "only pending jobs can be deleted")
		case errors.Is(err, job.ErrNotFound):
			respondError(c, http.StatusNotFound, "Print job not found")
		default:
			h.logger.Error("job delete failed", "job_id", jobID, "error", err)
			respondError(c, http.StatusInternalServerError, "Failed to delete print job")
		}
		return
	}

	if err := h.artifacts.Delete(j.Filepath); err != nil && !errors.Is(err, artifact.ErrNotFound) {
		h.logger.Error("artifact delete failed", "job_id", jobID, "error", err)
	}

	h.logger.Info("job deleted", "job_id", jobID)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Print job deleted successfully"})
}

// RegisterRoutes wires the print API under r. Upload is open so end
// users can submit without credentials; everything else needs the API
// key, and the agent-facing endpoints are additionally IP-restricted.
func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.Auth) {
	print := r.Group("/print")
	print.POST("/upload", h.Upload)

	keyed := print.Group("", auth.RequireAPIKey())
	keyed.GET("/status/:job_id", h.Status)
	keyed.GET("/history", h.History)

	restricted := keyed.Group("", auth.RequireAllowedIP())
	restricted.GET("/pending", h.Pending)
	restricted.GET("/download/:job_id", h.Download)
	restricted.PUT("/update/:job_id", h.Update)
	restricted.DELETE("/delete/:job_id", h.Delete)
}
