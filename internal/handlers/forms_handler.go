package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ffgcu/backend/internal/services"
)

type FormsHandler struct {
	service *services.FormsService
}

func NewFormsHandler(service *services.FormsService) *FormsHandler {
	return &FormsHandler{service: service}
}

// SubmitApplication relays a grant application form
// @Summary Submit application form
// @Description Accept a multipart application form and relay it to the admin mailbox
// @Tags forms
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /forms/application [post]
func (h *FormsHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, "Application")
}

// SubmitContact relays a contact form
// @Summary Submit contact form
// @Description Accept a multipart contact form and relay it to the admin mailbox
// @Tags forms
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /forms/contact [post]
func (h *FormsHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, "Contact")
}

func (h *FormsHandler) relay(w http.ResponseWriter, r *http.Request, kind string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxUploadBytes())

	if err := r.ParseMultipartForm(h.service.MaxUploadBytes()); err != nil {
		log.Printf("[FORMS] %s form parse failed: %v", kind, err)
		services.SendErrorResponse(w, "Invalid form submission", http.StatusBadRequest, nil)
		return
	}

	fields := make(map[string]string, len(r.MultipartForm.Value))
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	uploads, err := h.service.SaveUploads(r.MultipartForm)
	if err != nil {
		log.Printf("[FORMS] %s form upload save failed: %v", kind, err)
		services.SendErrorResponse(w, "Failed to save uploads", http.StatusInternalServerError, nil)
		return
	}

	h.service.RelayToAdmin(r.Context(), kind, fields, uploads)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
