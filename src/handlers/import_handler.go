package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/stocktracker/backend/src/config"
	"github.com/username/stocktracker/backend/src/logger"
	"github.com/username/stocktracker/backend/src/models"
	"github.com/username/stocktracker/backend/src/parsers"
	"github.com/username/stocktracker/backend/src/security/validation"
	"github.com/username/stocktracker/backend/src/services"
	"github.com/username/stocktracker/backend/src/utils"
)

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(importService services.ImportService) *ImportHandler {
	return &ImportHandler{importService: importService}
}

// importRequest is the shared body of the preview and commit endpoints.
type importRequest struct {
	Rows          []models.CsvRowData `json:"rows"`
	FieldMappings models.FieldMapping `json:"fieldMappings"`
}

// HandleUpload accepts a multipart CSV upload and returns the parsed headers
// and rows plus an initial mapping suggestion, so the client can start the
// map step without a second round trip.
func (h *ImportHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.WriteError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Upload exceeds the %d byte limit", config.Cfg.MaxUploadSizeBytes))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "A 'file' form field with the CSV upload is required")
		return
	}
	defer file.Close()

	if err := validation.ValidateClientContentType(header.Header.Get("Content-Type")); err != nil {
		utils.WriteError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		utils.WriteError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	parsed, err := h.importService.ParseUpload(file)
	if err != nil {
		writeParseError(w, err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"headers":    parsed.Headers,
		"rows":       parsed.Rows,
		"suggestion": h.importService.SuggestMappings(parsed.Headers),
	}, "")
}

func (h *ImportHandler) HandleSuggestMapping(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body struct {
		Headers []string `json:"headers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body.Headers) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "headers must not be empty")
		return
	}

	utils.WriteSuccess(w, http.StatusOK, h.importService.SuggestMappings(body.Headers), "")
}

func (h *ImportHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := GetUserIDFromContext(r.Context()); !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body importRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	preview, err := h.importService.PreviewImport(r.Context(), body.Rows, body.FieldMappings)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, preview, "")
}

func (h *ImportHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body importRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.importService.CommitImport(r.Context(), userID, body.Rows, body.FieldMappings)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	message := fmt.Sprintf("Imported %d of %d rows", result.ImportedCount, result.ImportedCount+result.SkippedCount)
	utils.WriteSuccess(w, http.StatusOK, result, message)
}

// writeParseError maps parser sentinel errors onto HTTP statuses.
func writeParseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, parsers.ErrEmptyFile):
		utils.WriteError(w, http.StatusBadRequest, "The CSV file contains no data rows")
	case errors.Is(err, parsers.ErrTooManyRows):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, parsers.ErrMalformedCsv):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		logger.L.Error("Unhandled CSV parse error", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to parse CSV file")
	}
}
