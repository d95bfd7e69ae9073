package mpesa

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/google/uuid"
)

// Canned provider answers used when the gateway runs in test mode.

const (
	TestResultDescSuccess = "The service request is processed successfully."
	testAcceptedMessage   = "Success. Request accepted for processing"
)

func (g *Gateway) testSTKPushResponse() (int, []byte, error) {
	var response any

	switch g.config.TestResponseStatusCode {
	case http.StatusOK:
		requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
		response = models.MpesaSTKPushResponse{
			MerchantRequestID:   "test-" + requestID[:12],
			CheckoutRequestID:   "ws_CO_" + requestID,
			ResponseCode:        ResponseCodeSuccess,
			ResponseDescription: testAcceptedMessage,
			CustomerMessage:     testAcceptedMessage,
		}
	case http.StatusBadRequest:
		response = models.MpesaErrorResponse{
			RequestID:    uuid.NewString(),
			ErrorCode:    "400.002.02",
			ErrorMessage: invalidPhoneNumberMessage,
		}
	default:
		response = map[string]string{"errorMessage": "Internal Server Error"}
	}

	body, err := json.Marshal(response)
	if err != nil {
		return 0, nil, err
	}

	return g.config.TestResponseStatusCode, body, nil
}

func (g *Gateway) testReversalResponse() (int, []byte, error) {
	body, err := json.Marshal(models.MpesaReversalResponse{
		OriginatorConversationID: uuid.NewString(),
		ConversationID:           "AG_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ResponseCode:             ResponseCodeSuccess,
		ResponseDescription:      "Accept the service request successfully.",
	})
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, body, nil
}

// TestCallback builds the successful result the provider would post for txn.
func TestCallback(txn entities.Transaction) models.MpesaCallback {
	resultCode := 0

	item := func(name string, value any) models.MpesaCallbackItem {
		raw, _ := json.Marshal(value)
		return models.MpesaCallbackItem{Name: name, Value: raw}
	}

	return models.MpesaCallback{
		Body: models.MpesaCallbackBody{
			STKCallback: models.MpesaSTKCallback{
				MerchantRequestID: txn.MerchantRequestID,
				CheckoutRequestID: txn.CheckoutRequestID,
				ResultCode:        &resultCode,
				ResultDesc:        TestResultDescSuccess,
				CallbackMetadata: &models.MpesaCallbackMetadata{
					Item: []models.MpesaCallbackItem{
						item("Amount", txn.Amount.InexactFloat64()),
						item("MpesaReceiptNumber", "TEST"+strings.ToUpper(uuid.NewString()[:6])),
						item("TransactionDate", txn.CreatedAt.Format(timestampLayout)),
						item("PhoneNumber", txn.PhoneNumber),
					},
				},
			},
		},
	}
}
