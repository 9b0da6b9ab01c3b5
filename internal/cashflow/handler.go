package cashflow

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lease-cashflow/cashflow-backend/internal/leases"
	"lease-cashflow/cashflow-backend/internal/projection"
	"lease-cashflow/cashflow-backend/internal/reports/export"
)

// Handler handles HTTP requests for cash flow projections
type Handler struct {
	service       *Service
	logger        *zap.Logger
	maxUploadSize int64
}

// NewHandler creates a new cash flow handler
func NewHandler(service *Service, logger *zap.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		service:       service,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

// RegisterRoutes registers cash flow routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	cashflow := router.Group("/cashflow")
	{
		cashflow.POST("/projections", h.createProjection)
		cashflow.GET("/projections", h.listProjections)
		cashflow.GET("/projections/:id", h.getProjection)
		cashflow.GET("/projections/:id/export", h.exportProjection)
		cashflow.POST("/projections/:id/archive", h.archiveProjection)

		cashflow.GET("/sample", h.downloadSample)
	}
}

// createProjection handles POST /api/v1/cashflow/projections
func (h *Handler) createProjection(c *gin.Context) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.respondError(c, "Rent roll upload too large", err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "a rent roll file is required in the 'file' field"})
		return
	}
	defer file.Close()

	format, err := leases.DetectFormat(header.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := &ProjectionRequest{
		SourceName:        header.Filename,
		Format:            format,
		Body:              file,
		EscalationPercent: h.service.projection.DefaultEscalationPercent,
		Rounding:          c.PostForm("rounding"),
		ValidationMode:    c.PostForm("validation"),
	}

	if raw := c.PostForm("valuation_date"); raw != "" {
		req.ValuationDate, err = leases.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid valuation_date"})
			return
		}
	} else {
		req.ValuationDate = projection.Date(time.Now())
	}

	if raw := c.PostForm("escalation_percent"); raw != "" {
		req.EscalationPercent, err = strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid escalation_percent"})
			return
		}
	}

	var exportFormat export.ExportFormat
	if raw := c.Query("format"); raw != "" {
		if exportFormat, err = export.ParseExportFormat(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	run, err := h.service.RunProjection(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to run projection", err)
		return
	}

	if exportFormat != "" && exportFormat != export.ExportFormatJSON {
		h.writeExport(c, run.ID, exportFormat)
		return
	}

	c.JSON(http.StatusCreated, NewRunResponse(run))
}

// listProjections handles GET /api/v1/cashflow/projections
func (h *Handler) listProjections(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))

	runs, err := h.service.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "Failed to list projections", err)
		return
	}

	resp := &RunListResponse{Runs: make([]*RunResponse, 0, len(runs)), Count: len(runs)}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, NewRunResponse(run))
	}

	c.JSON(http.StatusOK, resp)
}

// getProjection handles GET /api/v1/cashflow/projections/:id
func (h *Handler) getProjection(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get projection", err)
		return
	}

	c.JSON(http.StatusOK, NewRunResponse(run))
}

// exportProjection handles GET /api/v1/cashflow/projections/:id/export
func (h *Handler) exportProjection(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	format, err := export.ParseExportFormat(c.DefaultQuery("format", string(export.ExportFormatExcel)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.writeExport(c, id, format)
}

// archiveProjection handles POST /api/v1/cashflow/projections/:id/archive
func (h *Handler) archiveProjection(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}

	format, err := export.ParseExportFormat(c.DefaultQuery("format", string(export.ExportFormatExcel)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ArchiveRun(c.Request.Context(), id, format)
	if err != nil {
		h.respondError(c, "Failed to archive projection", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// downloadSample handles GET /api/v1/cashflow/sample
func (h *Handler) downloadSample(c *gin.Context) {
	var buf bytes.Buffer
	if err := leases.WriteSampleWorkbook(&buf); err != nil {
		h.respondError(c, "Failed to build sample workbook", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="sample_rent_roll.xlsx"`)
	c.Data(http.StatusOK, export.ExportFormatExcel.ContentType(), buf.Bytes())
}

// writeExport renders into a buffer first so a failed export still gets a
// JSON error instead of a truncated file
func (h *Handler) writeExport(c *gin.Context, id uuid.UUID, format export.ExportFormat) {
	var buf bytes.Buffer
	if err := h.service.ExportRun(c.Request.Context(), id, format, &buf); err != nil {
		h.respondError(c, "Failed to export projection", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName()))
	c.Header("X-Projection-Run-ID", id.String())
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid projection ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	} else {
		h.logger.Info(msg, zap.Error(err), zap.Int("status", status))
	}

	body := gin.H{"error": err.Error()}

	var issues projection.ValidationErrors
	var parseErr *leases.ParseError
	var schemaErr *leases.SchemaError
	switch {
	case errors.As(err, &issues):
		body["validation_errors"] = issues
	case errors.As(err, &parseErr):
		body["row"] = parseErr.Row
		body["column"] = parseErr.Column
	case errors.As(err, &schemaErr):
		body["missing_columns"] = schemaErr.Missing
	}

	c.JSON(status, body)
}

// StatusFor maps service errors to HTTP status codes
func StatusFor(err error) int {
	var schemaErr *leases.SchemaError
	var parseErr *leases.ParseError
	var issues projection.ValidationErrors
	var maxBytes *http.MaxBytesError

	switch {
	case errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.As(err, &schemaErr), errors.As(err, &parseErr),
		errors.Is(err, ErrInvalidParameter), errors.Is(err, leases.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &issues):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrArchiveDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
