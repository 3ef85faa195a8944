package paymob

import "errors"

var (
	// ErrInvalidRequest is returned when the request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrAuthFailed is returned when the API key is rejected
	ErrAuthFailed = errors.New("authentication with payment gateway failed")

	// ErrOrderRegistration is returned when registering the order fails
	ErrOrderRegistration = errors.New("gateway order registration failed")

	// ErrPaymentKey is returned when the payment key request fails
	ErrPaymentKey = errors.New("payment key request failed")

	// ErrNetworkError is returned when there's a network communication error
	ErrNetworkError = errors.New("network error")

	// ErrInvalidSignature is returned when a callback HMAC does not match
	ErrInvalidSignature = errors.New("invalid callback signature")
)
