package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/renderer"
	"github.com/username/navhub/src/services"
	"github.com/username/navhub/src/store"
	"github.com/username/navhub/src/utils"
)

type NAVHandler struct {
	navService services.NAVService
}

func NewNAVHandler(service services.NAVService) *NAVHandler {
	return &NAVHandler{navService: service}
}

type ingestRequest struct {
	Date     string   `json:"date"`
	Filters  []string `json:"filters"`
	FileType string   `json:"fileType"`
}

func (h *NAVHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	date, err := parseDateParam(req.Date)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.L.Info("Processing ingest request", "date", utils.DateOnly(date), "filters", req.Filters)
	result, err := h.navService.Ingest(r.Context(), date, services.IngestOptions{
		Filters:  req.Filters,
		FileType: req.FileType,
	})
	if err != nil {
		logger.L.Error("Ingestion run failed", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Ingestion failed: %v", err), http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, result)
}

func (h *NAVHandler) HandleGetNAVs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.QueryFilter{
		ISIN:         q.Get("isin"),
		SeriesNumber: q.Get("series"),
	}
	if v := q.Get("from"); v != "" {
		from, err := utils.ParseNAVDate(v)
		if err != nil {
			utils.SendJSONError(w, "Invalid 'from' date: "+v, http.StatusBadRequest)
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := utils.ParseNAVDate(v)
		if err != nil {
			utils.SendJSONError(w, "Invalid 'to' date: "+v, http.StatusBadRequest)
			return
		}
		filter.To = to
	}

	page := intQueryParam(q.Get("page"), 1)
	perPage := intQueryParam(q.Get("perPage"), 50)
	if perPage > 500 {
		perPage = 500
	}

	records, total, err := h.navService.Query(r.Context(), filter, page, perPage)
	if err != nil {
		logger.L.Error("NAV query failed", "error", err)
		utils.SendJSONError(w, "Failed to query NAV records", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"page":    page,
		"perPage": perPage,
	})
}

type reportRequest struct {
	Date       string   `json:"date"`
	Templates  []string `json:"templates"`
	Recipients []string `json:"recipients"`
	FilterDesc string   `json:"filterDesc"`
}

func (h *NAVHandler) HandleRender(w http.ResponseWriter, r *http.Request) {
	_, date, types, ok := h.decodeReportRequest(w, r)
	if !ok {
		return
	}

	artifacts, err := h.navService.Render(r.Context(), date, types)
	if err != nil {
		h.sendReportError(w, "Render", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

func (h *NAVHandler) HandleDistribute(w http.ResponseWriter, r *http.Request) {
	req, date, types, ok := h.decodeReportRequest(w, r)
	if !ok {
		return
	}
	if len(req.Recipients) == 0 {
		utils.SendJSONError(w, "At least one recipient is required", http.StatusBadRequest)
		return
	}

	artifacts, err := h.navService.Distribute(r.Context(), date, types, req.Recipients, req.FilterDesc)
	if err != nil {
		h.sendReportError(w, "Distribute", err)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts, "recipients": req.Recipients})
}

func (h *NAVHandler) decodeReportRequest(w http.ResponseWriter, r *http.Request) (reportRequest, time.Time, []renderer.TemplateType, bool) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return req, time.Time{}, nil, false
	}

	date, err := parseDateParam(req.Date)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return req, time.Time{}, nil, false
	}

	if len(req.Templates) == 0 {
		req.Templates = []string{string(renderer.TemplateMorningstar), string(renderer.TemplateSIX)}
	}
	types := make([]renderer.TemplateType, 0, len(req.Templates))
	for _, name := range req.Templates {
		t := renderer.TemplateType(name)
		if _, err := renderer.CellMapFor(t); err != nil {
			utils.SendJSONError(w, "Unknown template type: "+name, http.StatusBadRequest)
			return req, time.Time{}, nil, false
		}
		types = append(types, t)
	}
	return req, date, types, true
}

func (h *NAVHandler) sendReportError(w http.ResponseWriter, op string, err error) {
	logger.L.Error(op+" failed", "error", err)
	if errors.Is(err, models.ErrBatchInvalid) {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	utils.SendJSONError(w, fmt.Sprintf("%s failed: %v", op, err), http.StatusInternalServerError)
}

// parseDateParam defaults an empty date to today (UTC).
func parseDateParam(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := utils.ParseNAVDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return date, nil
}

func intQueryParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
