package gateway

import "time"

// Status is the provider-side state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// Config holds the provider connection settings.
type Config struct {
	BaseURL         string
	APIUser         string
	APIKey          string
	SubscriptionKey string
	Currency        string
	Timeout         time.Duration
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type paymentRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	PhoneNumber string `json:"phone_number"`
	ExternalID  string `json:"external_id"`
}

type paymentResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type statusResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}
