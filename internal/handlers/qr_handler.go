package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/ffgcu/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR renders a share QR for the authenticated member's account
// @Summary Generate account share QR
// @Description Generate a short-lived QR code carrying the member's account share code
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{shareCode=string,qrImage=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /account/share-qr [get]
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromContext(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	shareCode, qrImage, err := h.service.GenerateShareQR(r.Context(), accountID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"shareCode": shareCode,
		"qrImage":   qrImage,
	})
}

// ResolveQR resolves a scanned share code
// @Summary Resolve share code
// @Description Exchange a scanned share code for the account details it references
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{shareCode=string} true "Share code"
// @Success 200 {object} object{data=object}
// @Failure 400 {object} services.ErrorResponse
// @Router /account/share-qr/resolve [post]
func (h *QRHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShareCode string `json:"shareCode" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.ResolveShareCode(r.Context(), req.ShareCode)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}

func accountIDFromContext(r *http.Request) (int, bool) {
	v := r.Context().Value("userID")
	if v == nil {
		return 0, false
	}
	switch id := v.(type) {
	case int:
		return id, true
	case string:
		n, err := strconv.Atoi(id)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
