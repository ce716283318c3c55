package domain

import "time"

// Company is a Metrics Hub tenant.
type Company struct {
	ID        int64
	Name      string
	Slug      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompanyDomain maps a custom dashboard hostname to its owning company.
type CompanyDomain struct {
	ID        int64
	Host      string
	CompanyID int64
}

// ConnectionStatus summarizes a company's Google connection state for the
// dashboard. Exactly one of the states applies at any time.
type ConnectionStatus struct {
	State     string `json:"state"` // "connected", "expired", "not_connected"
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

const (
	ConnectionConnected    = "connected"
	ConnectionExpired      = "expired"
	ConnectionNotConnected = "not_connected"
)
