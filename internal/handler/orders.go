package handler

import (
	"net/http"
	"strconv"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/orders"
	"go.uber.org/zap"
)

func (h *Handler) CreateOrder(res http.ResponseWriter, req *http.Request) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.CreateOrderRequest

	if err := h.decodeRequest(req, &requestModel); err != nil {
		zap.L().Info("error validate create order request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.orders.Create(req.Context(), actor, requestModel)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusCreated, models.NewOrderResponse(order))
}

func (h *Handler) GetOrders(res http.ResponseWriter, req *http.Request) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var active *bool

	if raw := req.URL.Query().Get("is_active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			zap.L().Info("error parse is_active", zap.String("is_active", raw))

			res.WriteHeader(http.StatusBadRequest)
			return
		}

		active = &parsed
	}

	list, err := h.orders.ShopOrders(req.Context(), actor, active)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeOrders(res, list)
}

func (h *Handler) writeOrders(res http.ResponseWriter, list []entities.Order) {
	responseOrders := make(models.GetOrdersResponse, 0, len(list))
	for _, order := range list {
		responseOrders = append(responseOrders, models.NewOrderResponse(order))
	}

	h.writeJSON(res, http.StatusOK, responseOrders)
}

func (h *Handler) GetOrder(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		order, err := h.orders.GetOrder(req.Context(), actor, orderID)
		if err != nil {
			h.writeError(res, err)
			return
		}

		h.writeJSON(res, http.StatusOK, models.NewOrderResponse(order))
	})
}

func (h *Handler) AssignDriver(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		var requestModel models.AssignDriverRequest

		if err := h.decodeRequest(req, &requestModel); err != nil {
			zap.L().Info("error validate assign driver request", zap.Error(err))

			res.WriteHeader(http.StatusBadRequest)
			return
		}

		order, err := h.orders.AssignDriver(req.Context(), actor, orderID, requestModel.DriverID)
		if err != nil {
			h.writeError(res, err)
			return
		}

		h.writeJSON(res, http.StatusOK, models.NewOrderResponse(order))
	})
}

func (h *Handler) CancelOrder(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		order, err := h.orders.Cancel(req.Context(), actor, orderID)
		if err != nil {
			h.writeError(res, err)
			return
		}

		h.writeJSON(res, http.StatusOK, models.NewOrderResponse(order))
	})
}

// PayOrder requests a new MPesa payment. Managers and drivers share it.
func (h *Handler) PayOrder(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		sent, err := h.orders.Pay(req.Context(), actor, orderID)
		if err != nil {
			h.writeError(res, err)
			return
		}

		// A refused payment request is still a handled outcome.
		if !sent {
			h.writeMessage(res, http.StatusOK, orders.MessagePayNotSent)
			return
		}

		h.writeMessage(res, http.StatusOK, orders.MessagePaySent)
	})
}

func (h *Handler) GetTransaction(res http.ResponseWriter, req *http.Request) {
	h.withOrder(res, req, func(actor orders.Actor, orderID int64) {
		txn, err := h.orders.TransactionStatus(req.Context(), actor, orderID)
		if err != nil {
			h.writeError(res, err)
			return
		}

		h.writeJSON(res, http.StatusOK, models.NewTransactionResponse(txn))
	})
}

// withOrder resolves the caller and the {id} path parameter.
func (h *Handler) withOrder(res http.ResponseWriter, req *http.Request, fn func(actor orders.Actor, orderID int64)) {
	actor, ok := h.actor(req)
	if !ok {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	orderID, ok := h.orderID(req)
	if !ok {
		res.WriteHeader(http.StatusNotFound)
		return
	}

	fn(actor, orderID)
}
