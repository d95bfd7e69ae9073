package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/VladKvetkin/ofinta/internal/middleware"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/orders"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Processor applies provider callbacks.
type Processor interface {
	Process(ctx context.Context, callback models.MpesaCallback) (any, int)
	Timeout(payload json.RawMessage) (any, int)
}

type Handler struct {
	storage   storage.Storage
	orders    *orders.Service
	processor Processor
	validate  *validator.Validate

	jwtSecret   string
	linkBaseURL string
}

func NewHandler(storage storage.Storage, orders *orders.Service, processor Processor, jwtSecret string, linkBaseURL string) *Handler {
	return &Handler{
		storage:     storage,
		orders:      orders,
		processor:   processor,
		validate:    validator.New(),
		jwtSecret:   jwtSecret,
		linkBaseURL: linkBaseURL,
	}
}

func (h *Handler) Healthz(res http.ResponseWriter, _ *http.Request) {
	res.WriteHeader(http.StatusOK)
}

func (h *Handler) actor(req *http.Request) (orders.Actor, bool) {
	subject, ok := middleware.SubjectFromContext(req.Context())
	if !ok {
		return orders.Actor{}, false
	}

	return orders.Actor{UserID: subject.UserID, ShopID: subject.ShopID, Role: subject.Role}, true
}

func (h *Handler) orderID(req *http.Request) (int64, bool) {
	orderID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil || orderID < 1 {
		return 0, false
	}

	return orderID, true
}

// decodeRequest reads a JSON body into model and runs its validate tags.
func (h *Handler) decodeRequest(req *http.Request, model any) error {
	jsonDecoder := json.NewDecoder(req.Body)

	if err := jsonDecoder.Decode(model); err != nil {
		return fmt.Errorf("cannot decode request to json: %w", err)
	}

	if err := h.validate.Struct(model); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	return nil
}

func (h *Handler) writeJSON(res http.ResponseWriter, status int, body any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(body); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}

func (h *Handler) writeMessage(res http.ResponseWriter, status int, message string) {
	h.writeJSON(res, status, models.MessageResponse{Message: message})
}

// writeError answers with the status and body the error maps to.
func (h *Handler) writeError(res http.ResponseWriter, err error) {
	var (
		fieldErrs validation.Errors
		stateErr  *orders.StateError
	)

	switch {
	case errors.As(err, &fieldErrs):
		h.writeJSON(res, http.StatusBadRequest, fieldErrs)
	case errors.As(err, &stateErr):
		status := http.StatusBadRequest
		if errors.Is(err, orders.ErrNotAssigned) {
			status = http.StatusForbidden
		}

		h.writeMessage(res, status, stateErr.Message)
	case errors.Is(err, orders.ErrOrderNotFound):
		res.WriteHeader(http.StatusNotFound)
	case errors.Is(err, orders.ErrPaymentLinkExpired):
		h.writeMessage(res, http.StatusNotFound, orders.MessageLinkUnavailable)
	case errors.Is(err, orders.ErrDriverNotInShop):
		h.writeMessage(res, http.StatusBadRequest, "Driver does not belong to the shop")
	case errors.Is(err, orders.ErrNoTransaction):
		h.writeMessage(res, http.StatusNotFound, "Order has no transaction")
	default:
		zap.L().Info("error handle request", zap.Error(err))
		res.WriteHeader(http.StatusInternalServerError)
	}
}
