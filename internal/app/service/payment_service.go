package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/pkg/logger"
	"github.com/dukkanhq/dukkan-backend/pkg/payment/paymob"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentMethodNotAllowed = errors.New("order is not payable by card")
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")
	ErrInvalidSignature        = errors.New("invalid callback signature")
)

const paymentProvider = "paymob"

// PaymentSession is what the frontend needs to open the hosted checkout.
type PaymentSession struct {
	OrderNumber    string `json:"order_number"`
	PaymentToken   string `json:"payment_token"`
	IframeURL      string `json:"iframe_url"`
	GatewayOrderID int64  `json:"gateway_order_id"`
	AmountCents    int64  `json:"amount_cents"`
}

type PaymentService interface {
	InitiatePayment(ctx context.Context, orderID uint, requesterID *uint) (*PaymentSession, error)
	HandleProcessedCallback(envelope paymob.CallbackEnvelope, receivedHMAC string) error
}

type paymentService struct {
	orderRepo repository.OrderRepository
	gateway   *paymob.Client
}

func NewPaymentService(orderRepo repository.OrderRepository, gateway *paymob.Client) PaymentService {
	return &paymentService{
		orderRepo: orderRepo,
		gateway:   gateway,
	}
}

// InitiatePayment runs the gateway's three-step handshake for a pending card
// order: auth token, gateway order registration, then the payment key that
// the iframe consumes. Nothing about the order itself changes besides the
// recorded gateway order ID.
func (s *paymentService) InitiatePayment(ctx context.Context, orderID uint, requesterID *uint) (*PaymentSession, error) {
	logger.Info("Initiating card payment", map[string]interface{}{
		"order_id":     orderID,
		"requester_id": requesterID,
	})

	order, err := s.orderRepo.FindByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	// A registered user can only pay for their own orders. Guest orders are
	// payable without a requester.
	if requesterID != nil {
		if order.UserID == nil || *order.UserID != *requesterID {
			logger.Warn("Payment initiation denied: ownership mismatch", map[string]interface{}{
				"order_id":     orderID,
				"requester_id": *requesterID,
			})
			return nil, ErrOrderNotFound
		}
	} else if order.UserID != nil {
		return nil, ErrOrderNotFound
	}

	if order.PaymentMethod != model.PaymentMethodCard {
		logger.Warn("Payment initiation rejected: not a card order", map[string]interface{}{
			"order_id":       orderID,
			"payment_method": order.PaymentMethod,
		})
		return nil, ErrPaymentMethodNotAllowed
	}
	if order.Payment == nil {
		return nil, ErrPaymentNotFound
	}
	// A declined payment on a still-pending order is retryable; only a
	// settled payment or a moved-on order blocks re-initiation.
	if order.Payment.Status == model.PaymentStatusSuccess || order.Status != model.OrderStatusPending {
		logger.Warn("Payment initiation rejected: order not awaiting payment", map[string]interface{}{
			"order_id":       orderID,
			"order_status":   order.Status,
			"payment_status": order.Payment.Status,
		})
		return nil, ErrPaymentAlreadyProcessed
	}

	amountCents := toCents(order.TotalAmount)

	auth, err := s.gateway.Authenticate(ctx)
	if err != nil {
		logger.Error("Gateway authentication failed", err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, err
	}

	items := make([]paymob.OrderItem, 0, len(order.OrderItems))
	for _, item := range order.OrderItems {
		items = append(items, paymob.OrderItem{
			Name:        item.Product.Name,
			AmountCents: toCents(item.Price),
			Quantity:    item.Quantity,
		})
	}

	gatewayOrder, err := s.gateway.RegisterOrder(ctx, paymob.OrderRequest{
		AuthToken:       auth.Token,
		AmountCents:     amountCents,
		MerchantOrderID: order.OrderNumber,
		Items:           items,
	})
	if err != nil {
		logger.Error("Gateway order registration failed", err, map[string]interface{}{
			"order_id":     orderID,
			"order_number": order.OrderNumber,
		})
		return nil, err
	}

	firstName, lastName := splitName(order.FullName)
	key, err := s.gateway.RequestPaymentKey(ctx, paymob.PaymentKeyRequest{
		AuthToken:   auth.Token,
		AmountCents: amountCents,
		OrderID:     gatewayOrder.ID,
		BillingData: paymob.BillingData{
			FirstName:      firstName,
			LastName:       lastName,
			Email:          order.Email,
			PhoneNumber:    order.Phone,
			Street:         order.Address,
			Building:       "NA",
			Floor:          "NA",
			Apartment:      "NA",
			City:           order.City,
			Country:        orDefault(order.Country, "NA"),
			State:          "NA",
			PostalCode:     "NA",
			ShippingMethod: "NA",
		},
		LockOrderWhenPaid: true,
	})
	if err != nil {
		logger.Error("Gateway payment key request failed", err, map[string]interface{}{
			"order_id":         orderID,
			"gateway_order_id": gatewayOrder.ID,
		})
		return nil, err
	}

	order.Payment.Provider = paymentProvider
	order.Payment.GatewayOrderID = strconv.FormatInt(gatewayOrder.ID, 10)
	// Re-arm a declined payment for the new attempt. The declined
	// transaction ID stays recorded so its redelivered callback is still
	// recognized as a replay.
	if order.Payment.Status == model.PaymentStatusFailed {
		order.Payment.Status = model.PaymentStatusPending
	}
	if err := s.orderRepo.UpdatePayment(order.Payment); err != nil {
		return nil, err
	}

	logger.Info("Card payment initiated", map[string]interface{}{
		"order_id":         orderID,
		"order_number":     order.OrderNumber,
		"gateway_order_id": gatewayOrder.ID,
		"amount_cents":     amountCents,
	})

	return &PaymentSession{
		OrderNumber:    order.OrderNumber,
		PaymentToken:   key.Token,
		IframeURL:      s.gateway.IframeURL(key.Token),
		GatewayOrderID: gatewayOrder.ID,
		AmountCents:    amountCents,
	}, nil
}

// HandleProcessedCallback applies a verified transaction webhook to the
// matching order. Replays of an already-applied transaction are no-ops, so
// the gateway can retry delivery safely.
func (s *paymentService) HandleProcessedCallback(envelope paymob.CallbackEnvelope, receivedHMAC string) error {
	tx := envelope.Obj

	if !paymob.VerifyCallbackHMAC(tx, s.gateway.GetConfig().HMACSecret, receivedHMAC) {
		logger.Warn("Rejected payment callback: HMAC mismatch", map[string]interface{}{
			"transaction_id":    tx.ID,
			"merchant_order_id": tx.Order.MerchantOrderID,
		})
		return ErrInvalidSignature
	}

	logger.Info("Processing payment callback", map[string]interface{}{
		"transaction_id":    tx.ID,
		"merchant_order_id": tx.Order.MerchantOrderID,
		"success":           tx.Success,
		"pending":           tx.Pending,
	})

	// Pending notifications carry no final outcome.
	if tx.Pending {
		return nil
	}

	order, err := s.orderRepo.FindByOrderNumber(tx.Order.MerchantOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Payment callback for unknown order", map[string]interface{}{
				"merchant_order_id": tx.Order.MerchantOrderID,
			})
			return ErrOrderNotFound
		}
		return err
	}
	if order.Payment == nil {
		return ErrPaymentNotFound
	}
	payment := order.Payment

	transactionID := strconv.FormatInt(tx.ID, 10)

	// Redelivery of a transaction we already recorded is a no-op.
	prior, err := s.orderRepo.FindPaymentByTransactionID(transactionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if prior != nil && prior.ID == payment.ID {
		logger.Info("Payment callback replayed, ignoring", map[string]interface{}{
			"order_id":       order.ID,
			"transaction_id": transactionID,
			"payment_status": payment.Status,
		})
		return nil
	}

	// A settled payment cannot be demoted by a late delivery. A failed one
	// falls through: a new transaction means the customer tried again.
	if payment.Status == model.PaymentStatusSuccess {
		logger.Info("Payment already settled, ignoring callback", map[string]interface{}{
			"order_id":       order.ID,
			"transaction_id": transactionID,
		})
		return nil
	}

	succeeded := tx.Success && !tx.ErrorOccured
	if succeeded && tx.AmountCents != toCents(payment.Amount) {
		logger.Warn("Payment callback amount mismatch, marking failed", map[string]interface{}{
			"order_id":       order.ID,
			"expected_cents": toCents(payment.Amount),
			"received_cents": tx.AmountCents,
		})
		succeeded = false
	}

	payment.TransactionID = transactionID
	if succeeded {
		now := time.Now()
		payment.Status = model.PaymentStatusSuccess
		payment.PaidAt = &now
	} else {
		payment.Status = model.PaymentStatusFailed
	}
	if err := s.orderRepo.UpdatePayment(payment); err != nil {
		return err
	}

	if succeeded && order.Status.CanTransitionTo(model.OrderStatusPaid) {
		if err := s.orderRepo.UpdateStatus(order.ID, model.OrderStatusPaid); err != nil {
			return err
		}
	}

	logger.Info("Payment callback applied", map[string]interface{}{
		"order_id":       order.ID,
		"transaction_id": transactionID,
		"payment_status": payment.Status,
	})
	return nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "NA", "NA"
	}
	if len(parts) == 1 {
		return parts[0], "NA"
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
