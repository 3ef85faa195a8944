package errors

// Error code constants.
// Format: CATEGORY_SPECIFIC_DETAIL
// Frontends map these codes to localized messages.

const (
	// ==================== Authentication (AUTH_) ====================
	AuthUnauthorized       = "AUTH_UNAUTHORIZED"
	AuthInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	AuthTokenExpired       = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"
	AuthTokenRevoked       = "AUTH_TOKEN_REVOKED"
	AuthEmailAlreadyExists = "AUTH_EMAIL_EXISTS"

	// ==================== Authorization (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"
	AuthzAccessDenied = "AUTHZ_ACCESS_DENIED"
	AuthzAdminOnly    = "AUTHZ_ADMIN_ONLY"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput  = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID     = "VALIDATION_INVALID_ID"
	ValidationInvalidFormat = "VALIDATION_INVALID_FORMAT"
	ValidationInvalidRange  = "VALIDATION_INVALID_RANGE"
	ValidationRequired      = "VALIDATION_REQUIRED"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Products (PRODUCT_) ====================
	ProductNotFound     = "PRODUCT_NOT_FOUND"
	ProductOutOfStock   = "PRODUCT_OUT_OF_STOCK"
	ProductInvalidPrice = "PRODUCT_INVALID_PRICE"

	// ==================== Cart (CART_) ====================
	CartNotFound          = "CART_NOT_FOUND"
	CartItemNotFound      = "CART_ITEM_NOT_FOUND"
	CartEmpty             = "CART_EMPTY"
	CartInvalidQuantity   = "CART_INVALID_QUANTITY"
	CartSessionRequired   = "CART_SESSION_REQUIRED"
	CartAlreadyMerged     = "CART_ALREADY_MERGED"
	CartInsufficientStock = "CART_INSUFFICIENT_STOCK"

	// ==================== Orders (ORDER_) ====================
	OrderNotFound          = "ORDER_NOT_FOUND"
	OrderEmptyCart         = "ORDER_EMPTY_CART"
	OrderInsufficientStock = "ORDER_INSUFFICIENT_STOCK"
	OrderInvalidStatus     = "ORDER_INVALID_STATUS"
	OrderInvalidTransition = "ORDER_INVALID_TRANSITION"
	OrderInvalidAddress    = "ORDER_INVALID_ADDRESS"

	// ==================== Payment (PAYMENT_) ====================
	PaymentNotFound           = "PAYMENT_NOT_FOUND"
	PaymentInitiationFailed   = "PAYMENT_INITIATION_FAILED"
	PaymentInvalidSignature   = "PAYMENT_INVALID_SIGNATURE"
	PaymentAlreadyProcessed   = "PAYMENT_ALREADY_PROCESSED"
	PaymentMethodNotAllowed   = "PAYMENT_METHOD_NOT_ALLOWED"
	PaymentGatewayUnavailable = "PAYMENT_GATEWAY_UNAVAILABLE"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
	InternalConfigError   = "INTERNAL_CONFIG_ERROR"
)
