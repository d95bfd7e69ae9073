package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VladKvetkin/ofinta/internal/orders"
	"github.com/VladKvetkin/ofinta/internal/services/validation"
	"github.com/stretchr/testify/assert"
)

func TestWriteError(t *testing.T) {
	h := NewHandler(nil, nil, nil, "secret", "")

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "field errors",
			err:    validation.New("order").Add("buyer_name", validation.CodeRequiredField, "buyer_name is a required field").Err(),
			status: http.StatusBadRequest,
			body:   `[{"field":"buyer_name","domain":"order.error","code":"REQUIRED_FIELD","desc":"buyer_name is a required field"}]`,
		},
		{
			name:   "joined field errors",
			err:    errors.Join(orders.ErrOrderNumberTaken, validation.New("order").Add("order_number", validation.CodeInvalidValue, "taken").Err()),
			status: http.StatusBadRequest,
			body:   `[{"field":"order_number","domain":"order.error","code":"INVALID_VALUE","desc":"taken"}]`,
		},
		{
			name:   "rejected transition",
			err:    fmt.Errorf("accept: %w", &orders.StateError{Message: orders.MessageCannotAccept}),
			status: http.StatusBadRequest,
			body:   `{"message":"` + orders.MessageCannotAccept + `"}`,
		},
		{
			name:   "payment link expired",
			err:    orders.ErrPaymentLinkExpired,
			status: http.StatusNotFound,
			body:   `{"message":"` + orders.MessageLinkUnavailable + `"}`,
		},
		{
			name:   "driver of another shop",
			err:    orders.ErrDriverNotInShop,
			status: http.StatusBadRequest,
			body:   `{"message":"Driver does not belong to the shop"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			h.writeError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestWriteErrorWithoutBody(t *testing.T) {
	h := NewHandler(nil, nil, nil, "secret", "")

	rec := httptest.NewRecorder()
	h.writeError(rec, orders.ErrOrderNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.writeError(rec, errors.New("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
