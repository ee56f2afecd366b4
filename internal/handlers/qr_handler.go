package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tabungin/backend/internal/services"
)

type QRHandler struct {
	service *services.QRService
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{service: service}
}

// GetStudentQR returns a student's printable QR card
// @Summary Get student QR card
// @Description Generate the QR card image encoding the student's NIS and school code
// @Tags QR
// @Produce json
// @Param nis path string true "Student NIS"
// @Success 200 {object} object{payload=string,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /students/{nis}/qr [get]
func (h *QRHandler) GetStudentQR(w http.ResponseWriter, r *http.Request) {
	nis := chi.URLParam(r, "nis")

	payload, qrImage, err := h.service.GenerateStudentQR(r.Context(), nis)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"payload": payload,
		"qrImage": qrImage,
	})
}
