// Package mpesa talks to the Safaricom Daraja API and keeps the local
// transaction ledger in step with what the provider answered.
package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/VladKvetkin/ofinta/internal/config"
	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/models"
	"github.com/VladKvetkin/ofinta/internal/services/converter"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	transactionTypePayBill     = "CustomerPayBillOnline"
	commandTransactionReversal = "TransactionReversal"
	invalidPhoneNumberMessage  = "Bad Request - Invalid PhoneNumer"
	reversalIdentifierType     = "4"
	refundRemarks              = "Refund"
	refundDescriptionTemplate  = "Refund of transaction %d"
	timestampLayout            = "20060102150405"
	testAccessToken            = "token"
	requestTimeout             = 30 * time.Second
)

var ErrNoAccessToken = errors.New("no access token")

// Ledger is the part of storage the gateway writes to.
type Ledger interface {
	CreateTransaction(context.Context, *entities.Transaction) error
	UpdateTransaction(context.Context, entities.Transaction) error
	MarkTransactionExpired(context.Context, int64) (bool, error)
	GetTransaction(context.Context, int64) (entities.Transaction, error)
	AttachTransaction(context.Context, int64, int64) error
}

type SubmitResult struct {
	Success     bool
	Transaction entities.Transaction
}

type Gateway struct {
	config config.MpesaConfig
	ledger Ledger

	// client posts payments and reversals and never retries them.
	client      *resty.Client
	tokenClient *resty.Client

	now func() time.Time
}

func NewGateway(config config.MpesaConfig, ledger Ledger) *Gateway {
	return &Gateway{
		config:      config,
		ledger:      ledger,
		client:      resty.New().SetTimeout(requestTimeout),
		tokenClient: initTokenClient(),
		now:         time.Now,
	}
}

func initTokenClient() *resty.Client {
	client := resty.New()

	client.
		SetTimeout(requestTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return client
}

func (g *Gateway) TestMode() bool {
	return g.config.TestMode
}

func (g *Gateway) AccessToken(ctx context.Context) (string, error) {
	if g.config.TestMode {
		return testAccessToken, nil
	}

	var tokenResponse models.MpesaAccessTokenResponse

	response, err := g.tokenClient.R().
		SetContext(ctx).
		SetBasicAuth(g.config.ConsumerKey, g.config.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&tokenResponse).
		Get(g.config.OAuthTokenURL)
	if err != nil {
		return "", fmt.Errorf("error request access token: %w", err)
	}

	if response.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("error request access token, invalid status: %v", response.Status())
	}

	if tokenResponse.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	return tokenResponse.AccessToken, nil
}

func (g *Gateway) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.config.BusinessShortCode + g.config.Passkey + timestamp))
}

// SubmitPayment starts an STK push for the payment. A transaction row is
// written whatever the provider answers; only storage failures are returned
// as errors.
func (g *Gateway) SubmitPayment(ctx context.Context, payment entities.Payment, amount decimal.Decimal, phone string, description string) (SubmitResult, error) {
	timestamp := g.now().Format(timestampLayout)

	request := models.MpesaSTKPushRequest{
		BusinessShortCode: g.config.BusinessShortCode,
		Password:          g.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            converter.FormatMpesaAmount(amount),
		PartyA:            phone,
		PartyB:            g.config.BusinessShortCode,
		PhoneNumber:       phone,
		CallBackURL:       g.config.ResultURL,
		AccountReference:  g.config.AccountReference,
		TransactionDesc:   description,
	}

	statusCode, body, err := g.postSTKPush(ctx, request)
	if err != nil {
		zap.L().Info("error failed to make a payment", zap.Error(err))
	}

	txn := entities.Transaction{
		Type:         entities.TransactionTypePayment,
		Status:       entities.TransactionStatusNew,
		Amount:       amount,
		PartyA:       phone,
		PartyB:       g.config.BusinessShortCode,
		PhoneNumber:  phone,
		Description:  description,
		ResponseData: string(body),
	}

	if err := g.ledger.CreateTransaction(ctx, &txn); err != nil {
		return SubmitResult{}, fmt.Errorf("error create transaction: %w", err)
	}

	if err := g.ledger.AttachTransaction(ctx, payment.ID, txn.ID); err != nil {
		return SubmitResult{}, fmt.Errorf("error attach transaction to payment: %w", err)
	}

	success := g.applySTKPushResponse(&txn, statusCode, body)

	if err := g.ledger.UpdateTransaction(ctx, txn); err != nil {
		return SubmitResult{}, fmt.Errorf("error update transaction: %w", err)
	}

	return SubmitResult{Success: success, Transaction: txn}, nil
}

func (g *Gateway) postSTKPush(ctx context.Context, request models.MpesaSTKPushRequest) (int, []byte, error) {
	if g.config.TestMode {
		return g.testSTKPushResponse()
	}

	token, err := g.AccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(request).
		Post(g.config.STKPushURL)
	if err != nil {
		return 0, nil, err
	}

	return response.StatusCode(), response.Body(), nil
}

// applySTKPushResponse copies the provider answer onto txn and reports
// whether the push was accepted.
func (g *Gateway) applySTKPushResponse(txn *entities.Transaction, statusCode int, body []byte) bool {
	switch statusCode {
	case http.StatusOK:
		var response models.MpesaSTKPushResponse
		if err := json.Unmarshal(body, &response); err != nil {
			zap.L().Info("error decode stk push response", zap.Error(err))
			txn.Status = entities.TransactionStatusFailed
			return false
		}

		txn.ResponseCode = NormalizeResponseCode(response.ResponseCode)
		txn.MerchantRequestID = response.MerchantRequestID
		txn.CheckoutRequestID = response.CheckoutRequestID
		txn.ResponseDescription = describeResponse(txn.ResponseCode, response.ResponseDescription)
		txn.CustomerMessage = response.CustomerMessage

		return txn.ResponseCode == ResponseCodeSuccess
	case http.StatusBadRequest:
		var response models.MpesaErrorResponse
		if err := json.Unmarshal(body, &response); err != nil {
			zap.L().Info("error decode stk push error response", zap.Error(err))
		}

		txn.ResponseDescription = response.ErrorMessage

		if response.ErrorMessage == invalidPhoneNumberMessage {
			txn.Status = entities.TransactionStatusWrongNumber
		} else {
			txn.Status = entities.TransactionStatusWrongData
		}
	default:
		zap.L().Warn(
			"failed to make a payment",
			zap.Int("status_code", statusCode),
			zap.ByteString("response", body),
		)
		txn.Status = entities.TransactionStatusFailed
	}

	return false
}

// Refund reverses a successful payment. The original transaction is left as
// is; an accepted reversal is recorded as a new REVERSAL transaction.
func (g *Gateway) Refund(ctx context.Context, txn entities.Transaction) (bool, error) {
	request := models.MpesaReversalRequest{
		Initiator:              txn.PartyB,
		SecurityCredential:     g.config.SecurityCredential,
		CommandID:              commandTransactionReversal,
		TransactionID:          g.config.BusinessShortCode,
		Amount:                 converter.FormatMpesaAmount(txn.Amount),
		ReceiverParty:          txn.PartyA,
		RecieverIdentifierType: reversalIdentifierType,
		ResultURL:              g.config.ResultURL,
		QueueTimeOutURL:        g.config.TimeoutURL,
		Remarks:                refundRemarks,
		Occasion:               "",
	}

	statusCode, body, err := g.postReversal(ctx, request)
	if err != nil {
		zap.L().Info("error failed to refund transaction", zap.Int64("transaction_id", txn.ID), zap.Error(err))
		return false, nil
	}

	if statusCode != http.StatusOK {
		zap.L().Warn(
			"failed to refund transaction",
			zap.Int64("transaction_id", txn.ID),
			zap.Int("status_code", statusCode),
			zap.ByteString("response", body),
		)
		return false, nil
	}

	var response models.MpesaReversalResponse
	if err := json.Unmarshal(body, &response); err != nil {
		zap.L().Info("error decode reversal response", zap.Error(err))
		return false, nil
	}

	reversal := entities.Transaction{
		Type:                entities.TransactionTypeReversal,
		Status:              entities.TransactionStatusNew,
		Amount:              txn.Amount,
		PartyA:              g.config.BusinessShortCode,
		PartyB:              txn.PhoneNumber,
		PhoneNumber:         txn.PhoneNumber,
		Description:         fmt.Sprintf(refundDescriptionTemplate, txn.ID),
		ResponseCode:        NormalizeResponseCode(response.ResponseCode),
		ResponseDescription: describeResponse(NormalizeResponseCode(response.ResponseCode), response.ResponseDescription),
		ResponseData:        string(body),
	}

	if err := g.ledger.CreateTransaction(ctx, &reversal); err != nil {
		return false, fmt.Errorf("error create reversal transaction: %w", err)
	}

	return reversal.ResponseCode == ResponseCodeSuccess, nil
}

func (g *Gateway) postReversal(ctx context.Context, request models.MpesaReversalRequest) (int, []byte, error) {
	if g.config.TestMode {
		return g.testReversalResponse()
	}

	token, err := g.AccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(request).
		Post(g.config.ReversalURL)
	if err != nil {
		return 0, nil, err
	}

	return response.StatusCode(), response.Body(), nil
}

// CheckTimeout fails a transaction that is still NEW after the configured
// request timeout. The row is only touched while it is still NEW, so a
// callback that landed after txn was read wins and the stored row is
// returned instead.
func (g *Gateway) CheckTimeout(ctx context.Context, txn entities.Transaction) (entities.Transaction, error) {
	if txn.Status != entities.TransactionStatusNew || g.now().Sub(txn.CreatedAt) <= g.config.RequestTimeout {
		return txn, nil
	}

	expired, err := g.ledger.MarkTransactionExpired(ctx, txn.ID)
	if err != nil {
		return txn, fmt.Errorf("error expire transaction: %w", err)
	}

	if expired {
		txn.Status = entities.TransactionStatusFailed
		return txn, nil
	}

	stored, err := g.ledger.GetTransaction(ctx, txn.ID)
	if err != nil {
		return txn, fmt.Errorf("error get transaction: %w", err)
	}

	return stored, nil
}
