package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/db"
	"github.com/dukkanhq/dukkan-backend/pkg/payment/paymob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testHMACSecret = "test-hmac-secret"

type paymentTestEnv struct {
	db         *gorm.DB
	paymentSvc PaymentService
	orderSvc   OrderService
	cartSvc    CartService
	user       *model.User
	product    *model.Product
	gateway    *httptest.Server
}

// newGatewayStub fakes the three Accept API endpoints the initiation flow hits.
func newGatewayStub(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "auth-token-123"})
	})
	mux.HandleFunc("/ecommerce/orders", func(w http.ResponseWriter, r *http.Request) {
		var req paymob.OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auth-token-123", req.AuthToken)
		assert.NotEmpty(t, req.MerchantOrderID)
		json.NewEncoder(w).Encode(map[string]int64{"id": 777001})
	})
	mux.HandleFunc("/acceptance/payment_keys", func(w http.ResponseWriter, r *http.Request) {
		var req paymob.PaymentKeyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(777001), req.OrderID)
		assert.NotEmpty(t, req.BillingData.FirstName)
		json.NewEncoder(w).Encode(map[string]string{"token": "payment-key-456"})
	})
	return httptest.NewServer(mux)
}

func setupPaymentServiceTest(t *testing.T) *paymentTestEnv {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)

	gateway := newGatewayStub(t)
	t.Cleanup(gateway.Close)

	client, err := paymob.NewClient(paymob.Config{
		APIKey:        "test-api-key",
		IntegrationID: 42,
		IframeID:      7,
		BaseURL:       gateway.URL,
		HMACSecret:    testHMACSecret,
		Currency:      "EGP",
	})
	require.NoError(t, err)

	cartRepo := repository.NewCartRepository(testDB)
	productRepo := repository.NewProductRepository(testDB)
	orderRepo := repository.NewOrderRepository(testDB)

	user := &model.User{Email: "payer@example.com", PasswordHash: "hash", Name: "Payer", Role: model.RoleUser}
	testDB.Create(user)

	product := &model.Product{Name: "Denim Jacket", Price: 899.5, Category: "jackets", StockQuantity: 5}
	testDB.Create(product)

	return &paymentTestEnv{
		db:         testDB,
		paymentSvc: NewPaymentService(orderRepo, client),
		orderSvc:   NewOrderService(orderRepo, cartRepo, testDB),
		cartSvc:    NewCartService(cartRepo, productRepo, testDB),
		user:       user,
		product:    product,
		gateway:    gateway,
	}
}

func (e *paymentTestEnv) placeOrder(t *testing.T, method string) *model.Order {
	owner := CartOwner{UserID: &e.user.ID}
	_, err := e.cartSvc.AddItem(owner, AddItemInput{ProductID: e.product.ID, Quantity: 2})
	require.NoError(t, err)
	order, err := e.orderSvc.CreateOrderFromCart(e.user.ID, checkoutInput(method))
	require.NoError(t, err)
	return order
}

// signedCallback builds an envelope for the order with a valid HMAC digest.
func signedCallback(order *model.Order, success bool) (paymob.CallbackEnvelope, string) {
	tx := paymob.TransactionCallback{
		ID:          900123,
		AmountCents: int64(order.TotalAmount * 100),
		CreatedAt:   "2026-08-30T10:00:00",
		Currency:    "EGP",
		Order:       paymob.CallbackOrder{ID: 777001, MerchantOrderID: order.OrderNumber},
		Owner:       55,
		SourceData:  paymob.CallbackSourceData{Pan: "2346", SubType: "MasterCard", Type: "card"},
		Success:     success,
	}
	envelope := paymob.CallbackEnvelope{Type: "TRANSACTION", Obj: tx}
	return envelope, paymob.ComputeCallbackHMAC(tx, testHMACSecret)
}

func TestPaymentService_InitiatePayment(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")

	session, err := env.paymentSvc.InitiatePayment(context.Background(), order.ID, &env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, session.OrderNumber)
	assert.Equal(t, "payment-key-456", session.PaymentToken)
	assert.Equal(t, int64(777001), session.GatewayOrderID)
	assert.Equal(t, int64(179900), session.AmountCents) // 2 x 899.50
	assert.True(t, strings.Contains(session.IframeURL, "payment_token=payment-key-456"))

	// The gateway order ID is persisted on the payment record
	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Payment)
	assert.Equal(t, "paymob", found.Payment.Provider)
	assert.Equal(t, "777001", found.Payment.GatewayOrderID)
}

func TestPaymentService_InitiatePayment_Rejections(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	// COD orders never reach the gateway
	cod := env.placeOrder(t, "cash_on_delivery")
	_, err := env.paymentSvc.InitiatePayment(context.Background(), cod.ID, &env.user.ID)
	assert.ErrorIs(t, err, ErrPaymentMethodNotAllowed)

	// Unknown order
	_, err = env.paymentSvc.InitiatePayment(context.Background(), 99999, &env.user.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// Someone else's order is reported as missing
	card := env.placeOrder(t, "card")
	other := &model.User{Email: "stranger@example.com", PasswordHash: "hash", Name: "Stranger", Role: model.RoleUser}
	env.db.Create(other)
	_, err = env.paymentSvc.InitiatePayment(context.Background(), card.ID, &other.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// A user order is not payable anonymously
	_, err = env.paymentSvc.InitiatePayment(context.Background(), card.ID, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPaymentService_InitiatePayment_AlreadyProcessed(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")

	env.db.Model(&model.PaymentInfo{}).Where("order_id = ?", order.ID).
		Update("status", model.PaymentStatusSuccess)

	_, err := env.paymentSvc.InitiatePayment(context.Background(), order.ID, &env.user.ID)
	assert.ErrorIs(t, err, ErrPaymentAlreadyProcessed)
}

func TestPaymentService_Callback_Success(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")
	envelope, digest := signedCallback(order, true)

	require.NoError(t, env.paymentSvc.HandleProcessedCallback(envelope, digest))

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, found.Status)
	require.NotNil(t, found.Payment)
	assert.Equal(t, model.PaymentStatusSuccess, found.Payment.Status)
	assert.Equal(t, "900123", found.Payment.TransactionID)
	assert.NotNil(t, found.Payment.PaidAt)
}

func TestPaymentService_Callback_InvalidHMAC(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")
	envelope, _ := signedCallback(order, true)

	err := env.paymentSvc.HandleProcessedCallback(envelope, "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// A tampered payload fails against the original digest too
	envelope2, digest := signedCallback(order, false)
	envelope2.Obj.Success = true
	err = env.paymentSvc.HandleProcessedCallback(envelope2, digest)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// Nothing was applied
	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, found.Status)
	assert.Equal(t, model.PaymentStatusPending, found.Payment.Status)
}

func TestPaymentService_Callback_UppercaseHMACAccepted(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")
	envelope, digest := signedCallback(order, true)

	// Some gateway dashboards send the digest uppercased
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(envelope, strings.ToUpper(digest)))
}

func TestPaymentService_Callback_ReplayIsNoOp(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")
	envelope, digest := signedCallback(order, true)

	require.NoError(t, env.paymentSvc.HandleProcessedCallback(envelope, digest))

	// Redelivery of the same transaction converges on the same state
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(envelope, digest))

	// A later failure callback cannot demote a settled payment either
	failEnvelope, failDigest := signedCallback(order, false)
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(failEnvelope, failDigest))

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, found.Status)
	assert.Equal(t, model.PaymentStatusSuccess, found.Payment.Status)
}

func TestPaymentService_Callback_Failure(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")
	envelope, digest := signedCallback(order, false)

	require.NoError(t, env.paymentSvc.HandleProcessedCallback(envelope, digest))

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	// Failed payment leaves the order pending; retry or expiry decides later
	assert.Equal(t, model.OrderStatusPending, found.Status)
	assert.Equal(t, model.PaymentStatusFailed, found.Payment.Status)
	assert.Nil(t, found.Payment.PaidAt)
}

func TestPaymentService_DeclineThenRetrySucceeds(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")

	// First attempt is declined
	declined, declinedDigest := signedCallback(order, false)
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(declined, declinedDigest))

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, found.Status)
	assert.Equal(t, model.PaymentStatusFailed, found.Payment.Status)

	// The customer can open a fresh payment session for the same order
	session, err := env.paymentSvc.InitiatePayment(context.Background(), order.ID, &env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "payment-key-456", session.PaymentToken)

	// Re-initiation arms the payment again
	found, err = env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, found.Payment.Status)

	// Redelivery of the declined transaction is still just a replay
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(declined, declinedDigest))
	found, err = env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, found.Payment.Status)

	// The retry settles with a new transaction
	retry := paymob.TransactionCallback{
		ID:          900321,
		AmountCents: int64(order.TotalAmount * 100),
		CreatedAt:   "2026-08-30T10:30:00",
		Currency:    "EGP",
		Order:       paymob.CallbackOrder{ID: 777001, MerchantOrderID: order.OrderNumber},
		SourceData:  paymob.CallbackSourceData{Pan: "2346", SubType: "Visa", Type: "card"},
		Success:     true,
	}
	retryDigest := paymob.ComputeCallbackHMAC(retry, testHMACSecret)
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(
		paymob.CallbackEnvelope{Type: "TRANSACTION", Obj: retry}, retryDigest))

	found, err = env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, found.Status)
	assert.Equal(t, model.PaymentStatusSuccess, found.Payment.Status)
	assert.Equal(t, "900321", found.Payment.TransactionID)
	assert.NotNil(t, found.Payment.PaidAt)
}

func TestPaymentService_Callback_SuccessAfterFailure(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")

	declined, digest := signedCallback(order, false)
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(declined, digest))

	// The customer retried in the still-open checkout; the new transaction
	// settles even though no new session was opened
	retry := paymob.TransactionCallback{
		ID:          900654,
		AmountCents: int64(order.TotalAmount * 100),
		CreatedAt:   "2026-08-30T10:15:00",
		Currency:    "EGP",
		Order:       paymob.CallbackOrder{ID: 777001, MerchantOrderID: order.OrderNumber},
		Success:     true,
	}
	retryDigest := paymob.ComputeCallbackHMAC(retry, testHMACSecret)
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(
		paymob.CallbackEnvelope{Type: "TRANSACTION", Obj: retry}, retryDigest))

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, found.Status)
	assert.Equal(t, model.PaymentStatusSuccess, found.Payment.Status)
	assert.Equal(t, "900654", found.Payment.TransactionID)
}

func TestPaymentService_Callback_AmountMismatch(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")

	tx := paymob.TransactionCallback{
		ID:          900456,
		AmountCents: 100, // nowhere near the order total
		CreatedAt:   "2026-08-30T11:00:00",
		Currency:    "EGP",
		Order:       paymob.CallbackOrder{ID: 777001, MerchantOrderID: order.OrderNumber},
		Success:     true,
	}
	envelope := paymob.CallbackEnvelope{Type: "TRANSACTION", Obj: tx}
	digest := paymob.ComputeCallbackHMAC(tx, testHMACSecret)

	require.NoError(t, env.paymentSvc.HandleProcessedCallback(envelope, digest))

	// A "successful" transaction for the wrong amount is recorded as failed
	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, found.Status)
	assert.Equal(t, model.PaymentStatusFailed, found.Payment.Status)
}

func TestPaymentService_Callback_PendingAndUnknownOrder(t *testing.T) {
	env := setupPaymentServiceTest(t)
	defer db.CleanupTestDB(env.db)

	order := env.placeOrder(t, "card")

	// Pending notifications carry no outcome and change nothing
	pending := paymob.TransactionCallback{
		ID:          900789,
		AmountCents: int64(order.TotalAmount * 100),
		Order:       paymob.CallbackOrder{MerchantOrderID: order.OrderNumber},
		Pending:     true,
	}
	digest := paymob.ComputeCallbackHMAC(pending, testHMACSecret)
	require.NoError(t, env.paymentSvc.HandleProcessedCallback(paymob.CallbackEnvelope{Obj: pending}, digest))

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, found.Payment.Status)

	// Unknown merchant order ID
	unknown := paymob.TransactionCallback{
		ID:      900790,
		Order:   paymob.CallbackOrder{MerchantOrderID: "ORD-20260101-DOESNOTEXIST"},
		Success: true,
	}
	digest = paymob.ComputeCallbackHMAC(unknown, testHMACSecret)
	err = env.paymentSvc.HandleProcessedCallback(paymob.CallbackEnvelope{Obj: unknown}, digest)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
