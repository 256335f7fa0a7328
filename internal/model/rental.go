package model

import "time"

// Rental is a time-bounded API key granting access to one model for one customer.
// Expiry is evaluated lazily against the caller's clock; nothing sweeps expired rows.
type Rental struct {
	ID               string    `json:"id"`
	ModelID          string    `json:"modelId"`
	CustomerID       string    `json:"customerId"`
	Customer         string    `json:"customer"`
	TokenHash        string    `json:"-"`
	TokenSealed      []byte    `json:"-"`
	TokenPrefix      string    `json:"tokenPrefix"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RequestID        *string   `json:"requestId,omitempty"`
	PaymentProcessed bool      `json:"paymentProcessed"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
}

// IsExpired reports whether now is at or past the expiry.
func (r *Rental) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// RentalContext is the validated rental injected into the request context.
type RentalContext struct {
	RentalID   string
	ModelID    string
	CustomerID string
	Customer   string
	ExpiresAt  time.Time
}

// CachedRental is the Redis representation of a rental used on the validation hot path.
type CachedRental struct {
	RentalID   string    `json:"rental_id"`
	ModelID    string    `json:"model_id"`
	CustomerID string    `json:"customer_id"`
	Customer   string    `json:"customer"`
	ExpiresAt  time.Time `json:"expires_at"`
	Active     bool      `json:"active"`
}

// ToContext converts a cached rental to a request context.
func (c *CachedRental) ToContext() *RentalContext {
	return &RentalContext{
		RentalID:   c.RentalID,
		ModelID:    c.ModelID,
		CustomerID: c.CustomerID,
		Customer:   c.Customer,
		ExpiresAt:  c.ExpiresAt,
	}
}

// ToCached builds the cache representation of a rental.
func (r *Rental) ToCached() *CachedRental {
	return &CachedRental{
		RentalID:   r.ID,
		ModelID:    r.ModelID,
		CustomerID: r.CustomerID,
		Customer:   r.Customer,
		ExpiresAt:  r.ExpiresAt,
		Active:     r.Active,
	}
}
