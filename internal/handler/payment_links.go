package handler

import (
	"net/http"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (h *Handler) paymentLinkResponse(order entities.Order) models.PaymentLinkResponse {
	response := models.PaymentLinkResponse{Order: models.NewOrderResponse(order)}

	if order.PaymentLinkID != nil {
		response.LinkID = *order.PaymentLinkID
		response.URL = h.linkBaseURL + *order.PaymentLinkID
	}

	return response
}

func (h *Handler) CreatePaymentLink(res http.ResponseWriter, req *http.Request) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.PaymentLinkRequest

	if err := h.decodeRequest(req, &requestModel); err != nil {
		zap.L().Info("error validate payment link request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.orders.CreatePaymentLink(req.Context(), actor, requestModel)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusCreated, h.paymentLinkResponse(order))
}

func (h *Handler) CancelPaymentLink(res http.ResponseWriter, req *http.Request) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	order, err := h.orders.CancelPaymentLink(req.Context(), actor, chi.URLParam(req, "linkID"))
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, h.paymentLinkResponse(order))
}

func (h *Handler) GetPaymentLink(res http.ResponseWriter, req *http.Request) {
	order, err := h.orders.GetPaymentLink(req.Context(), chi.URLParam(req, "linkID"))
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, h.paymentLinkResponse(order))
}

func (h *Handler) CheckoutPaymentLink(res http.ResponseWriter, req *http.Request) {
	var requestModel models.PaymentLinkCheckoutRequest

	if err := h.decodeRequest(req, &requestModel); err != nil {
		zap.L().Info("error validate checkout request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.orders.CheckoutPaymentLink(req.Context(), chi.URLParam(req, "linkID"), requestModel)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, h.paymentLinkResponse(order))
}
