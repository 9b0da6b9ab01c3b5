package cashflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"lease-cashflow/cashflow-backend/internal/config"
	"lease-cashflow/cashflow-backend/internal/leases"
	"lease-cashflow/cashflow-backend/internal/projection"
)

func newTestRouter(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _ := newTestService(t, nil, mutate)
	handler := NewHandler(svc, zap.NewNop(), 1<<20)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func uploadRequest(t *testing.T, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

type runBody struct {
	ID                string  `json:"id"`
	ValuationDate     string  `json:"valuation_date"`
	EscalationPercent float64 `json:"escalation_percent"`
	RowCount          int     `json:"row_count"`
	CashFlow          struct {
		Columns []string        `json:"columns"`
		Rows    [][]interface{} `json:"rows"`
	} `json:"cash_flow"`
}

func TestCreateProjection_JSON(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "/api/v1/cashflow/projections", "roll.csv", rentRoll, map[string]string{
		"valuation_date":     "2025-03-15",
		"escalation_percent": "5",
	}))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var got runBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "2025-03-15", got.ValuationDate)
	assert.Equal(t, 5.0, got.EscalationPercent)
	assert.Equal(t, 2, got.RowCount)
	assert.Equal(t, "2025", got.CashFlow.Columns[1])
	// in term 2026 escalated once: 100000 * 1.05
	assert.Equal(t, 105000.0, got.CashFlow.Rows[0][2])
	assert.Equal(t, 0.0, got.CashFlow.Rows[1][1])
}

func TestCreateProjection_StreamsExcel(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "/api/v1/cashflow/projections?format=excel", "roll.csv", rentRoll, map[string]string{
		"valuation_date": "2025-03-15",
	}))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "10_year_cash_flow.xlsx")
	assert.NotEmpty(t, w.Header().Get("X-Projection-Run-ID"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0), excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "Tenant", rows[0][0])
	assert.Equal(t, "Tenant A", rows[1][0])
}

func TestCreateProjection_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		filename string
		content  string
		fields   map[string]string
		status   int
	}{
		{
			name:     "unsupported file type",
			filename: "roll.txt",
			content:  rentRoll,
			status:   http.StatusBadRequest,
		},
		{
			name:     "missing columns",
			filename: "roll.csv",
			content:  "Tenant,Lease Start\nA,2025-01-01\n",
			status:   http.StatusBadRequest,
		},
		{
			name:     "unparseable row",
			filename: "roll.csv",
			content:  rentRollHeader + "A,soon,2026-01-01,1,1\n",
			status:   http.StatusBadRequest,
		},
		{
			name:     "escalation out of range",
			filename: "roll.csv",
			content:  rentRoll,
			fields:   map[string]string{"escalation_percent": "35"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "NaN escalation",
			filename: "roll.csv",
			content:  rentRoll,
			fields:   map[string]string{"escalation_percent": "NaN"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "infinite escalation",
			filename: "roll.csv",
			content:  rentRoll,
			fields:   map[string]string{"escalation_percent": "Inf"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "NaN rent",
			filename: "roll.csv",
			content:  rentRollHeader + "A,2025-01-01,2026-01-01,NaN,1\n",
			status:   http.StatusBadRequest,
		},
		{
			name:     "rent overflows when escalated",
			filename: "roll.csv",
			content:  rentRollHeader + "A,2020-01-01,2040-12-31,1e308,1e308\n",
			fields:   map[string]string{"escalation_percent": "20"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "bad valuation date",
			filename: "roll.csv",
			content:  rentRoll,
			fields:   map[string]string{"valuation_date": "whenever"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "strict validation",
			mutate:   func(c *config.Config) { c.Projection.ValidationMode = "strict" },
			filename: "roll.csv",
			content:  rentRollHeader + "A,2030-01-01,2025-01-01,1,1\n",
			status:   http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, tt.mutate)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, uploadRequest(t, "/api/v1/cashflow/projections", tt.filename, tt.content, tt.fields))

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestCreateProjection_MissingFile(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/cashflow/projections", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProjection_UploadTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, repo := newTestService(t, nil, nil)
	router := gin.New()
	NewHandler(svc, zap.NewNop(), 1<<10).RegisterRoutes(router.Group("/api/v1"))

	content := rentRollHeader + strings.Repeat("Tenant A,2023-01-01,2027-12-31,100000,120000\n", 150)
	require.Greater(t, len(content), 4<<10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "/api/v1/cashflow/projections", "roll.csv", content, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "too large")

	runs, _ := repo.ListRuns(context.Background(), 0)
	assert.Empty(t, runs)
}

func TestGetAndExportProjection(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "/api/v1/cashflow/projections", "roll.csv", rentRoll, map[string]string{
		"valuation_date": "2025-03-15",
	}))
	require.Equal(t, http.StatusCreated, w.Code)

	var created runBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cashflow/projections/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var fetched runBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.CashFlow.Rows, fetched.CashFlow.Rows)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cashflow/projections/"+created.ID+"/export?format=csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Tenant A,100000.00")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cashflow/projections", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestGetProjection_NotFoundAndBadID(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cashflow/projections/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cashflow/projections/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArchiveProjection_Disabled(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/cashflow/projections/"+uuid.NewString()+"/archive", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDownloadSample(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/cashflow/sample", nil))
	require.Equal(t, http.StatusOK, w.Code)

	records, err := leases.ReadExcel(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, leases.SampleRecords(), records)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrRunNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ErrInvalidParameter), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", &leases.SchemaError{Missing: []string{"Tenant"}}), http.StatusBadRequest},
		{&leases.ParseError{Row: 2, Column: "Lease Start", Err: errors.New("bad")}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", projection.ValidationErrors{{Row: 1, Code: "NEGATIVE_RENT"}}), http.StatusUnprocessableEntity},
		{fmt.Errorf("multipart: NextPart: %w", &http.MaxBytesError{Limit: 1024}), http.StatusRequestEntityTooLarge},
		{ErrArchiveDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.err), tt.err.Error())
	}
}
