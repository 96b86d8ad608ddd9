package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/username/navhub/src/config"
	"github.com/username/navhub/src/logger"
	"github.com/username/navhub/src/models"
	"github.com/username/navhub/src/qualitative"
	"github.com/username/navhub/src/services"
	"github.com/username/navhub/src/utils"
)

type QualitativeHandler struct {
	manager    *qualitative.Manager
	navService services.NAVService
}

func NewQualitativeHandler(manager *qualitative.Manager, navService services.NAVService) *QualitativeHandler {
	return &QualitativeHandler{manager: manager, navService: navService}
}

// HandleCompare diffs an uploaded qualitative file against the master without
// touching it. The response carries the master's version token; a later
// commit must present it.
func (h *QualitativeHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	master, err := h.manager.Load()
	if err != nil {
		h.sendQualitativeError(w, "Compare", err)
		return
	}
	uploadFile, err := qualitative.ParseFile(upload)
	if err != nil {
		h.sendQualitativeError(w, "Compare", err)
		return
	}

	changes := qualitative.Compare(master, uploadFile, qualitative.DefaultTrackedFields)
	utils.SendJSON(w, http.StatusOK, map[string]any{
		"changes":       changes,
		"masterVersion": master.Version,
		"report":        qualitative.FormatReport(changes),
	})
}

// HandleCommit replaces the master file. The request must carry the version
// token from a prior compare; a stale token means another commit landed in
// between and the caller gets 409.
func (h *QualitativeHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	upload, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	version := r.FormValue("version")
	if version == "" {
		utils.SendJSONError(w, "Missing 'version' field. Run a compare first and pass its masterVersion.", http.StatusBadRequest)
		return
	}

	result, err := h.manager.Commit(r.Context(), upload, version, qualitative.DefaultTrackedFields)
	if err != nil {
		h.sendQualitativeError(w, "Commit", err)
		return
	}

	h.navService.InvalidateStats()
	utils.SendJSON(w, http.StatusOK, result)
}

func (h *QualitativeHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return nil, false
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.L.Error("Failed to read uploaded file", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return nil, false
	}
	logger.L.Info("Qualitative file received", "filename", fileHeader.Filename, "bytes", len(data))
	return data, true
}

func (h *QualitativeHandler) sendQualitativeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, models.ErrCommitConflict):
		logger.L.Warn("Qualitative commit conflict", "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrBatchInvalid):
		logger.L.Warn("Qualitative file invalid", "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.L.Error(op+" failed", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("%s failed: %v", op, err), http.StatusInternalServerError)
	}
}
