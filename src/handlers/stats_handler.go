package handlers

import (
	"net/http"

	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/services"
	"github.com/username/navhub/src/utils"
)

type StatsHandler struct {
	navService services.NAVService
}

func NewStatsHandler(service services.NAVService) *StatsHandler {
	return &StatsHandler{navService: service}
}

func (h *StatsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.navService.Stats(r.Context())
	if err != nil {
		logger.L.Error("Failed to compute stats", "error", err)
		utils.SendJSONError(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, stats)
}
