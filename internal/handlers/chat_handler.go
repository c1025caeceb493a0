package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ffgcu/backend/internal/services"
)

type ChatHandler struct {
	service   *services.ChatService
	validator *services.ValidationHelper
}

func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Chat answers a support chat message
// @Summary Support chat
// @Description Answer a member support message with a canned reply
// @Tags chat
// @Accept json
// @Produce json
// @Param request body object{message=string} true "Chat message"
// @Success 200 {object} object{reply=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /chat [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message" validate:"required,max=500"`
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

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"reply": h.service.Reply(req.Message)})
}
