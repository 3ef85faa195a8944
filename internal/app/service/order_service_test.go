package service

import (
	"strings"
	"testing"
	"time"

	"github.com/dukkanhq/dukkan-backend/internal/app/model"
	"github.com/dukkanhq/dukkan-backend/internal/app/repository"
	"github.com/dukkanhq/dukkan-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type orderTestEnv struct {
	db       *gorm.DB
	orderSvc OrderService
	cartSvc  CartService
	user     *model.User
	hoodie   *model.Product
	tee      *model.Product
}

func setupOrderServiceTest(t *testing.T) *orderTestEnv {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)

	cartRepo := repository.NewCartRepository(testDB)
	productRepo := repository.NewProductRepository(testDB)
	orderRepo := repository.NewOrderRepository(testDB)

	user := &model.User{
		Email:        "buyer@example.com",
		PasswordHash: "hash",
		Name:         "Buyer",
		Role:         model.RoleUser,
	}
	testDB.Create(user)

	hoodie := &model.Product{Name: "Zip Hoodie", Price: 500.0, Category: "hoodies", StockQuantity: 10}
	tee := &model.Product{Name: "Logo Tee", Price: 150.0, Category: "tees", StockQuantity: 3}
	testDB.Create(hoodie)
	testDB.Create(tee)

	return &orderTestEnv{
		db:       testDB,
		orderSvc: NewOrderService(orderRepo, cartRepo, testDB),
		cartSvc:  NewCartService(cartRepo, productRepo, testDB),
		user:     user,
		hoodie:   hoodie,
		tee:      tee,
	}
}

func checkoutInput(method string) CheckoutInput {
	return CheckoutInput{
		FullName:      "Ali Hassan",
		Email:         "ali@example.com",
		Phone:         "+201001234567",
		Address:       "12 Tahrir St",
		City:          "Cairo",
		Country:       "Egypt",
		PaymentMethod: method,
	}
}

func (e *orderTestEnv) stockOf(t *testing.T, productID uint) int {
	var product model.Product
	require.NoError(t, e.db.First(&product, productID).Error)
	return product.StockQuantity
}

func TestOrderService_CreateOrderFromCart(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 2, Size: "M"})
	require.NoError(t, err)
	_, err = env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.tee.ID, Quantity: 1})
	require.NoError(t, err)

	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)

	// Totals come from the product table, not the client
	assert.Equal(t, 2*500.0+150.0, order.TotalAmount)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentMethodCard, order.PaymentMethod)
	require.NotNil(t, order.UserID)
	assert.Equal(t, env.user.ID, *order.UserID)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-"))
	require.Len(t, order.OrderItems, 2)

	// Unit prices are snapshotted
	for _, item := range order.OrderItems {
		if item.ProductID == env.hoodie.ID {
			assert.Equal(t, 500.0, item.Price)
			assert.Equal(t, "M", item.Size)
		}
	}

	// Payment record starts pending with the order total
	require.NotNil(t, order.Payment)
	assert.Equal(t, model.PaymentStatusPending, order.Payment.Status)
	assert.Equal(t, order.TotalAmount, order.Payment.Amount)

	// Stock decremented, cart cleared
	assert.Equal(t, 8, env.stockOf(t, env.hoodie.ID))
	assert.Equal(t, 2, env.stockOf(t, env.tee.ID))
	cart, err := env.cartSvc.GetCart(owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 0)
}

func TestOrderService_CreateOrder_PriceChangeAfterAdd(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
	require.NoError(t, err)

	// The price at checkout wins, not the price at add time
	env.db.Model(&model.Product{}).Where("id = ?", env.hoodie.ID).Update("price", 450.0)

	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)
	assert.Equal(t, 450.0, order.TotalAmount)
	assert.Equal(t, 450.0, order.OrderItems[0].Price)
}

func TestOrderService_CreateOrder_InsufficientStockRollsBack(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.tee.ID, Quantity: 3})
	require.NoError(t, err)

	// Someone else takes the tee stock between add and checkout
	env.db.Model(&model.Product{}).Where("id = ?", env.tee.ID).Update("stock_quantity", 1)

	_, err = env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing changed: hoodie stock intact, cart intact, no order
	assert.Equal(t, 10, env.stockOf(t, env.hoodie.ID))
	assert.Equal(t, 1, env.stockOf(t, env.tee.ID))
	cart, err := env.cartSvc.GetCart(owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)

	var count int64
	env.db.Model(&model.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestOrderService_CreateOrder_MissingProductReportedFirst(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 5})
	require.NoError(t, err)
	_, err = env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.tee.ID, Quantity: 2})
	require.NoError(t, err)

	// After the cart was filled, the hoodie stock collapsed and the tee
	// disappeared from the catalog
	env.db.Model(&model.Product{}).Where("id = ?", env.hoodie.ID).Update("stock_quantity", 1)
	env.db.Delete(&model.Product{}, env.tee.ID)

	// The vanished product wins over the stock shortage
	_, err = env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	assert.ErrorIs(t, err, ErrProductNotFound)

	// Nothing changed
	assert.Equal(t, 1, env.stockOf(t, env.hoodie.ID))
	var count int64
	env.db.Model(&model.Order{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestOrderService_CreateOrder_Validation(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	// Empty cart
	_, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	assert.ErrorIs(t, err, ErrEmptyCart)

	owner := CartOwner{UserID: &env.user.ID}
	_, err = env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
	require.NoError(t, err)

	// Unknown payment method
	_, err = env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("bitcoin"))
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	// The rejected checkout did not touch stock or cart
	assert.Equal(t, 10, env.stockOf(t, env.hoodie.ID))
	cart, _ := env.cartSvc.GetCart(owner)
	assert.Len(t, cart.Items, 1)
}

func TestOrderService_CreateGuestOrder(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	guest := CartOwner{GuestToken: "guest-checkout"}
	_, err := env.cartSvc.AddItem(guest, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
	require.NoError(t, err)

	order, err := env.orderSvc.CreateGuestOrder("guest-checkout", checkoutInput("cash_on_delivery"))
	require.NoError(t, err)
	assert.Nil(t, order.UserID)
	assert.Equal(t, model.PaymentMethodCashOnDelivery, order.PaymentMethod)
	assert.Equal(t, 500.0, order.TotalAmount)
	assert.Equal(t, 9, env.stockOf(t, env.hoodie.ID))

	// Orders are trackable by number without authentication
	tracked, err := env.orderSvc.GetOrderByNumber(order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, tracked.ID)

	_, err = env.orderSvc.CreateGuestOrder("", checkoutInput("card"))
	assert.ErrorIs(t, err, ErrCartSessionRequired)

	_, err = env.orderSvc.CreateGuestOrder("never-seen-session", checkoutInput("card"))
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestOrderService_GetOrderByID_Ownership(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
	require.NoError(t, err)
	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)

	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)

	// Someone else's ID: reported as missing, not forbidden
	other := &model.User{Email: "other@example.com", PasswordHash: "hash", Name: "Other", Role: model.RoleUser}
	env.db.Create(other)
	_, err = env.orderSvc.GetOrderByID(other.ID, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = env.orderSvc.GetOrderByID(env.user.ID, 99999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
	require.NoError(t, err)
	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("cash_on_delivery"))
	require.NoError(t, err)

	// pending -> processing -> shipped -> completed
	updated, err := env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, updated.Status)

	updated, err = env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, updated.Status)

	// shipped -> pending is not an edge
	_, err = env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	updated, err = env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, updated.Status)

	// completed is terminal
	_, err = env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	// not a status at all
	_, err = env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatus("refunded"))
	assert.ErrorIs(t, err, ErrInvalidOrderStatus)
}

func TestOrderService_CancelRestoresStock(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 3})
	require.NoError(t, err)
	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)
	assert.Equal(t, 7, env.stockOf(t, env.hoodie.ID))

	cancelled, err := env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, env.stockOf(t, env.hoodie.ID))

	// Cancelled is terminal: no resurrection, no double restore
	_, err = env.orderSvc.UpdateOrderStatus(order.ID, model.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Equal(t, 10, env.stockOf(t, env.hoodie.ID))
}

func TestOrderService_CancelRefusesSettledPayment(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 2})
	require.NoError(t, err)
	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)

	stale, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)

	// The payment settles after the snapshot was taken
	env.db.Model(&model.PaymentInfo{}).Where("order_id = ?", order.ID).
		Update("status", model.PaymentStatusSuccess)

	svc := env.orderSvc.(*orderService)
	_, err = svc.cancelOrder(stale)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	// No stock came back and the order is untouched
	assert.Equal(t, 8, env.stockOf(t, env.hoodie.ID))
	found, err := env.orderSvc.GetOrderByID(env.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, found.Status)

	// Same refusal once the order itself has moved to paid
	env.db.Model(&model.Order{}).Where("id = ?", order.ID).
		Update("status", model.OrderStatusPaid)
	_, err = svc.cancelOrder(stale)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Equal(t, 8, env.stockOf(t, env.hoodie.ID))
}

func TestOrderService_ExpireStalePayments(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}

	// A stale unpaid card order
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 2})
	require.NoError(t, err)
	stale, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)
	env.db.Model(&model.Order{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-48*time.Hour))

	// A fresh card order and a stale COD order must both survive
	_, err = env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
	require.NoError(t, err)
	fresh, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)

	guest := CartOwner{GuestToken: "stale-cod-session"}
	_, err = env.cartSvc.AddItem(guest, AddItemInput{ProductID: env.tee.ID, Quantity: 1})
	require.NoError(t, err)
	cod, err := env.orderSvc.CreateGuestOrder("stale-cod-session", checkoutInput("cash_on_delivery"))
	require.NoError(t, err)
	env.db.Model(&model.Order{}).Where("id = ?", cod.ID).
		Update("created_at", time.Now().Add(-48*time.Hour))

	expired, err := env.orderSvc.ExpireStalePayments(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	// The stale order is cancelled with stock restored and payment failed
	found, err := env.orderSvc.GetOrderByID(env.user.ID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, found.Status)
	require.NotNil(t, found.Payment)
	assert.Equal(t, model.PaymentStatusFailed, found.Payment.Status)

	// The fresh order is untouched
	found, err = env.orderSvc.GetOrderByID(env.user.ID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, found.Status)

	// COD orders are never expired, stale or not
	codFound, err := env.orderSvc.GetOrderByNumber(cod.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, codFound.Status)
}

func TestOrderService_ListOrders(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	for i := 0; i < 3; i++ {
		_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 1})
		require.NoError(t, err)
		_, err = env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
		require.NoError(t, err)
	}

	orders, total, err := env.orderSvc.ListOrders(repository.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, orders, 3)

	orders, total, err = env.orderSvc.ListOrders(repository.OrderFilter{
		Status: model.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Len(t, orders, 0)

	_, _, err = env.orderSvc.ListOrders(repository.OrderFilter{
		Status: model.OrderStatus("bogus"),
	})
	assert.ErrorIs(t, err, ErrInvalidOrderStatus)
}

func TestOrderService_ExportOrdersExcel(t *testing.T) {
	env := setupOrderServiceTest(t)
	defer db.CleanupTestDB(env.db)

	owner := CartOwner{UserID: &env.user.ID}
	_, err := env.cartSvc.AddItem(owner, AddItemInput{ProductID: env.hoodie.ID, Quantity: 2})
	require.NoError(t, err)
	order, err := env.orderSvc.CreateOrderFromCart(env.user.ID, checkoutInput("card"))
	require.NoError(t, err)

	f, err := env.orderSvc.ExportOrdersExcel(repository.OrderFilter{})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 2) // header + one order
	assert.Equal(t, "Order Number", rows[0][0])
	assert.Equal(t, order.OrderNumber, rows[1][0])
}
