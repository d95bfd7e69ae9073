package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/orders"
	"go.uber.org/zap"
)

func (h *Handler) AcceptOrder(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		if _, err := h.orders.Accept(req.Context(), actor, orderID); err != nil {
			h.writeError(res, err)
			return
		}

		h.writeMessage(res, http.StatusOK, orders.MessageAccepted)
	})
}

func (h *Handler) SkipOrder(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		if _, err := h.orders.Skip(req.Context(), actor, orderID); err != nil {
			h.writeError(res, err)
			return
		}

		h.writeMessage(res, http.StatusOK, orders.MessageSkipped)
	})
}

func (h *Handler) ConfirmOrder(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		var requestModel models.ConfirmOrderRequest

		// Cash orders are confirmed without a code, so the body may be empty.
		if err := h.decodeRequest(req, &requestModel); err != nil && !errors.Is(err, io.EOF) {
			zap.L().Info("error validate confirm order request", zap.Error(err))

			res.WriteHeader(http.StatusBadRequest)
			return
		}

		if _, err := h.orders.Confirm(req.Context(), actor, orderID, requestModel.VerificationCode); err != nil {
			h.writeError(res, err)
			return
		}

		h.writeMessage(res, http.StatusOK, orders.MessageConfirmed)
	})
}

func (h *Handler) UpdateOrderStatus(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		var requestModel models.UpdateOrderStatusRequest

		if err := h.decodeRequest(req, &requestModel); err != nil {
			zap.L().Info("error validate update status request", zap.Error(err))

			res.WriteHeader(http.StatusBadRequest)
			return
		}

		order, err := h.orders.UpdateStatus(req.Context(), actor, orderID, requestModel.Status)
		if err != nil {
			h.writeError(res, err)
			return
		}

		h.writeJSON(res, http.StatusOK, models.NewOrderResponse(order))
	})
}

func (h *Handler) GetDriverOrders(res http.ResponseWriter, req *http.Request) {
	h.driverOrders(res, req, false)
}

func (h *Handler) GetDriverHistory(res http.ResponseWriter, req *http.Request) {
	h.driverOrders(res, req, true)
}

func (h *Handler) driverOrders(res http.ResponseWriter, req *http.Request, history bool) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	list, err := h.orders.DriverOrders(req.Context(), actor, history)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeOrders(res, list)
}

// SaveDevice registers the driver's push token. The newest device is the
// one pushes go to.
func (h *Handler) SaveDevice(res http.ResponseWriter, req *http.Request) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.DeviceRequest

	if err := h.decodeRequest(req, &requestModel); err != nil {
		zap.L().Info("error validate device request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.storage.SaveDevice(req.Context(), actor.UserID, requestModel.RegistrationID); err != nil {
		zap.L().Info("error save device", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	res.WriteHeader(http.StatusCreated)
}
