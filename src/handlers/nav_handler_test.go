package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleIngestInvalidPayloadIs400(t *testing.T) {
	h := NewNAVHandler(&stubNAVService{})

	req := httptest.NewRequest(http.MethodPost, "/api/navs/ingest", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleIngest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestBadDateIs400(t *testing.T) {
	h := NewNAVHandler(&stubNAVService{})

	req := httptest.NewRequest(http.MethodPost, "/api/navs/ingest", strings.NewReader(`{"date":"yesterday"}`))
	rec := httptest.NewRecorder()
	h.HandleIngest(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid date")
}

func TestHandleGetNAVsBadDateRangeIs400(t *testing.T) {
	h := NewNAVHandler(&stubNAVService{})

	req := httptest.NewRequest(http.MethodGet, "/api/navs?from=garbage", nil)
	rec := httptest.NewRecorder()
	h.HandleGetNAVs(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRenderUnknownTemplateIs400(t *testing.T) {
	h := NewNAVHandler(&stubNAVService{})

	req := httptest.NewRequest(http.MethodPost, "/api/reports/render",
		strings.NewReader(`{"date":"2026-07-15","templates":["pdf"]}`))
	rec := httptest.NewRecorder()
	h.HandleRender(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown template type")
}

func TestHandleDistributeRequiresRecipients(t *testing.T) {
	h := NewNAVHandler(&stubNAVService{})

	req := httptest.NewRequest(http.MethodPost, "/api/reports/distribute",
		strings.NewReader(`{"date":"2026-07-15"}`))
	rec := httptest.NewRecorder()
	h.HandleDistribute(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "recipient")
}
