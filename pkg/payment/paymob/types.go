package paymob

// AuthRequest is the body for the auth token endpoint
type AuthRequest struct {
	APIKey string `json:"api_key"`
}

// AuthResponse carries the short-lived bearer token
type AuthResponse struct {
	Token string `json:"token"`
}

// OrderRequest registers an order with the gateway before payment
type OrderRequest struct {
	AuthToken       string      `json:"auth_token"`
	DeliveryNeeded  bool        `json:"delivery_needed"`
	AmountCents     int64       `json:"amount_cents"`
	Currency        string      `json:"currency"`
	MerchantOrderID string      `json:"merchant_order_id"`
	Items           []OrderItem `json:"items"`
}

// OrderItem is one line of a gateway order
type OrderItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
}

// OrderResponse carries the gateway-side order ID
type OrderResponse struct {
	ID int64 `json:"id"`
}

// BillingData is the customer detail block required by the payment key
// endpoint. The gateway rejects empty fields, so unknown values are sent
// as "NA".
type BillingData struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	Street         string `json:"street"`
	Building       string `json:"building"`
	Floor          string `json:"floor"`
	Apartment      string `json:"apartment"`
	City           string `json:"city"`
	Country        string `json:"country"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	ShippingMethod string `json:"shipping_method"`
}

// PaymentKeyRequest requests a single-use payment token for the iframe
type PaymentKeyRequest struct {
	AuthToken         string      `json:"auth_token"`
	AmountCents       int64       `json:"amount_cents"`
	Currency          string      `json:"currency"`
	OrderID           int64       `json:"order_id"`
	IntegrationID     int64       `json:"integration_id"`
	Expiration        int         `json:"expiration"`
	BillingData       BillingData `json:"billing_data"`
	LockOrderWhenPaid bool        `json:"lock_order_when_paid"`
}

// PaymentKeyResponse carries the iframe payment token
type PaymentKeyResponse struct {
	Token string `json:"token"`
}

// CallbackOrder is the order block inside a transaction callback
type CallbackOrder struct {
	ID              int64  `json:"id"`
	MerchantOrderID string `json:"merchant_order_id"`
}

// CallbackSourceData describes the payment instrument used
type CallbackSourceData struct {
	Pan     string `json:"pan"`
	SubType string `json:"sub_type"`
	Type    string `json:"type"`
}

// TransactionCallback is the processed-transaction webhook payload. Field
// order in the HMAC string is fixed by the gateway, not by this struct.
type TransactionCallback struct {
	ID                   int64              `json:"id"`
	AmountCents          int64              `json:"amount_cents"`
	CreatedAt            string             `json:"created_at"`
	Currency             string             `json:"currency"`
	ErrorOccured         bool               `json:"error_occured"`
	HasParentTransaction bool               `json:"has_parent_transaction"`
	IntegrationID        int64              `json:"integration_id"`
	Is3DSecure           bool               `json:"is_3d_secure"`
	IsAuth               bool               `json:"is_auth"`
	IsCapture            bool               `json:"is_capture"`
	IsRefunded           bool               `json:"is_refunded"`
	IsStandalonePayment  bool               `json:"is_standalone_payment"`
	IsVoided             bool               `json:"is_voided"`
	Order                CallbackOrder      `json:"order"`
	Owner                int64              `json:"owner"`
	Pending              bool               `json:"pending"`
	SourceData           CallbackSourceData `json:"source_data"`
	Success              bool               `json:"success"`
}

// CallbackEnvelope wraps the webhook body
type CallbackEnvelope struct {
	Type string              `json:"type"`
	Obj  TransactionCallback `json:"obj"`
}
