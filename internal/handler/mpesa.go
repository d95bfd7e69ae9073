package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/VladKvetkin/ofinta/internal/models"
	"go.uber.org/zap"
)

// MpesaResult receives the provider's STK push result.
func (h *Handler) MpesaResult(res http.ResponseWriter, req *http.Request) {
	var callback models.MpesaCallback

	if err := json.NewDecoder(req.Body).Decode(&callback); err != nil {
		zap.L().Info("error decode mpesa callback", zap.Error(err))

		h.writeJSON(res, http.StatusBadRequest, map[string]any{"Error": "Failed to process webhook"})
		return
	}

	body, status := h.processor.Process(req.Context(), callback)

	h.writeJSON(res, status, body)
}

func (h *Handler) MpesaTimeout(res http.ResponseWriter, req *http.Request) {
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		zap.L().Info("error read mpesa timeout body", zap.Error(err))
	}

	body, status := h.processor.Timeout(payload)

	h.writeJSON(res, status, body)
}
