package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/app/service"
	"github.com/dukkanhq/dukkan-backend/internal/db"
	"github.com/dukkanhq/dukkan-backend/pkg/payment/paymob"
)

const callbackHMACSecret = "controller-test-secret"

type paymentControllerEnv struct {
	controller *PaymentController
	router     *gin.Engine
	db         *gorm.DB
	orderSvc   service.OrderService
	user       *model.User
	order      *model.Order
}

func setupPaymentControllerTest(t *testing.T) *paymentControllerEnv {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	// Stub the three Accept API endpoints
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/tokens", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "auth-token"})
	})
	mux.HandleFunc("/ecommerce/orders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"id": 555001})
	})
	mux.HandleFunc("/acceptance/payment_keys", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "payment-key"})
	})
	gateway := httptest.NewServer(mux)
	t.Cleanup(gateway.Close)

	client, err := paymob.NewClient(paymob.Config{
		APIKey:        "test-key",
		IntegrationID: 42,
		IframeID:      7,
		BaseURL:       gateway.URL,
		HMACSecret:    callbackHMACSecret,
		Currency:      "EGP",
	})
	require.NoError(t, err)

	cartRepo := repository.NewCartRepository(testDB)
	productRepo := repository.NewProductRepository(testDB)
	orderRepo := repository.NewOrderRepository(testDB)
	orderService := service.NewOrderService(orderRepo, cartRepo, testDB)
	cartService := service.NewCartService(cartRepo, productRepo, testDB)
	paymentService := service.NewPaymentService(orderRepo, client)

	user := &model.User{Email: "payer@example.com", PasswordHash: "hash", Name: "Payer", Role: model.RoleUser}
	testDB.Create(user)
	product := &model.Product{Name: "Jacket", Price: 900, Category: "jackets", StockQuantity: 5}
	testDB.Create(product)

	_, err = cartService.AddItem(service.CartOwner{UserID: &user.ID},
		service.AddItemInput{ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	order, err := orderService.CreateOrderFromCart(user.ID, service.CheckoutInput{
		FullName:      "Ali Hassan",
		Email:         "ali@example.com",
		Phone:         "+2010",
		Address:       "12 Tahrir St",
		City:          "Cairo",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	return &paymentControllerEnv{
		controller: NewPaymentController(paymentService, orderService),
		router:     router,
		db:         testDB,
		orderSvc:   orderService,
		user:       user,
		order:      order,
	}
}

func (e *paymentControllerEnv) signedEnvelope(success bool) ([]byte, string) {
	tx := paymob.TransactionCallback{
		ID:          321654,
		AmountCents: int64(e.order.TotalAmount * 100),
		CreatedAt:   "2026-08-30T12:00:00",
		Currency:    "EGP",
		Order:       paymob.CallbackOrder{ID: 555001, MerchantOrderID: e.order.OrderNumber},
		SourceData:  paymob.CallbackSourceData{Pan: "2346", SubType: "MasterCard", Type: "card"},
		Success:     success,
	}
	body, _ := json.Marshal(paymob.CallbackEnvelope{Type: "TRANSACTION", Obj: tx})
	return body, paymob.ComputeCallbackHMAC(tx, callbackHMACSecret)
}

func TestPaymentController_CreatePayment_User(t *testing.T) {
	env := setupPaymentControllerTest(t)

	env.router.POST("/payment/create", func(c *gin.Context) {
		setUserIDInContext(c, env.user.ID)
		env.controller.CreatePayment(c)
	})

	body, _ := json.Marshal(gin.H{"order_id": env.order.ID})
	req := httptest.NewRequest(http.MethodPost, "/payment/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Payment service.PaymentSession `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "payment-key", response.Payment.PaymentToken)
	assert.Equal(t, int64(555001), response.Payment.GatewayOrderID)
	assert.Contains(t, response.Payment.IframeURL, "payment_token=payment-key")

	// A missing order_id is rejected before touching the gateway
	req = httptest.NewRequest(http.MethodPost, "/payment/create", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentController_CreatePayment_Guest(t *testing.T) {
	env := setupPaymentControllerTest(t)

	// Guest-payable order: detach it from the user
	env.db.Model(&model.Order{}).Where("id = ?", env.order.ID).Update("user_id", nil)

	env.router.POST("/payment/create", env.controller.CreatePayment)

	body, _ := json.Marshal(gin.H{"order_number": env.order.OrderNumber})
	req := httptest.NewRequest(http.MethodPost, "/payment/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// Unknown order number
	body, _ = json.Marshal(gin.H{"order_number": "ORD-00000000-MISSING"})
	req = httptest.NewRequest(http.MethodPost, "/payment/create", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentController_ProcessedCallback_Success(t *testing.T) {
	env := setupPaymentControllerTest(t)

	env.router.POST("/payment/processed_callback", env.controller.ProcessedCallback)

	body, digest := env.signedEnvelope(true)
	req := httptest.NewRequest(http.MethodPost, "/payment/processed_callback?hmac="+digest, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	order, err := env.orderSvc.GetOrderByID(env.user.ID, env.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
	assert.Equal(t, model.PaymentStatusSuccess, order.Payment.Status)

	// Redelivery converges on the same state
	req = httptest.NewRequest(http.MethodPost, "/payment/processed_callback?hmac="+digest, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	order, err = env.orderSvc.GetOrderByID(env.user.ID, env.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, order.Status)
}

func TestPaymentController_ProcessedCallback_BadSignature(t *testing.T) {
	env := setupPaymentControllerTest(t)

	env.router.POST("/payment/processed_callback", env.controller.ProcessedCallback)

	body, _ := env.signedEnvelope(true)

	// Missing digest
	req := httptest.NewRequest(http.MethodPost, "/payment/processed_callback", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong digest
	req = httptest.NewRequest(http.MethodPost, "/payment/processed_callback?hmac=deadbeef", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "PAYMENT_INVALID_SIGNATURE")

	// Nothing was applied
	order, err := env.orderSvc.GetOrderByID(env.user.ID, env.order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentStatusPending, order.Payment.Status)
}
