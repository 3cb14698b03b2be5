package v1

import (
	"net/http"
	"path/filepath"
	"strings"

	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/logger"
	"cod-fulfillment/pkg/utils"

	"github.com/google/uuid"
)

var (
	allowedMimeTypes = map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/webp": true,
	}
	allowedExtensions = map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	}
)

// AgentHandler is the delivery agent's interface: dispatch, proof upload and
// outcome reporting.
type AgentHandler struct {
	codUC         *usecase.CODUsecase
	proofUC       *usecase.ProofUsecase
	maxUploadSize int64
}

// NewAgentHandler wires the agent routes. proofUC may be nil when no proof
// storage is configured.
func NewAgentHandler(codUC *usecase.CODUsecase, proofUC *usecase.ProofUsecase, maxUploadSizeMB int64) *AgentHandler {
	return &AgentHandler{
		codUC:         codUC,
		proofUC:       proofUC,
		maxUploadSize: maxUploadSizeMB << 20,
	}
}

// POST /api/v1/agent/cod/orders/{orderId}/dispatch
func (h *AgentHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}

	attempt, err := h.codUC.Dispatch(r.Context(), currentUser(r), orderID)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, attempt)
}

// POST /api/v1/agent/cod/orders/{orderId}/outcome
func (h *AgentHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	var req usecase.DeliveryOutcomeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.codUC.RecordOutcome(r.Context(), currentUser(r), orderID, req)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// POST /api/v1/agent/cod/proofs (multipart: orderId, kind, file)
func (h *AgentHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	if h.proofUC == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "Proof storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "File too large or invalid format")
		return
	}

	orderID := strings.TrimSpace(r.FormValue("orderId"))
	if _, err := uuid.Parse(orderID); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "orderId must be a UUID")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedMimeTypes[contentType] || !allowedExtensions[ext] {
		logger.WithContext(r.Context()).Warn().Str("content_type", contentType).Str("ext", ext).Msg("Rejected proof upload")
		utils.WriteError(w, http.StatusBadRequest, "Invalid file type. Allowed: JPEG, PNG, WebP")
		return
	}

	res, err := h.proofUC.Upload(r.Context(), currentUser(r), orderID, r.FormValue("kind"), file)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, res)
}
