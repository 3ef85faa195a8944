package paymob

// Config represents the configuration for the Paymob Accept client
type Config struct {
	// APIKey authenticates the merchant against the auth endpoint
	APIKey string

	// IntegrationID selects the card integration on the Accept dashboard
	IntegrationID int64

	// IframeID identifies the hosted payment iframe
	IframeID int64

	// BaseURL is the Accept API base URL
	BaseURL string

	// HMACSecret verifies transaction callbacks
	HMACSecret string

	// Currency is the ISO currency code charged, e.g. "EGP"
	Currency string
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrInvalidRequest
	}
	if c.IntegrationID == 0 {
		return ErrInvalidRequest
	}
	if c.IframeID == 0 {
		return ErrInvalidRequest
	}
	if c.BaseURL == "" {
		return ErrInvalidRequest
	}
	if c.HMACSecret == "" {
		return ErrInvalidRequest
	}
	if c.Currency == "" {
		return ErrInvalidRequest
	}
	return nil
}
