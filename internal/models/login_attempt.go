package models

import "time"

// Address is the resolved geolocation of a client IP, captured for audit only.
type Address struct {
	City        string  `json:"city,omitempty"`
	Region      string  `json:"region,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Continent   string  `json:"continent,omitempty"`
	Postal      string  `json:"postal,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	ISP         string  `json:"isp,omitempty"`
}

// SessionTokens are the cookie-based tokens of a browser session.
type SessionTokens struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// ClientAppTokens are the bearer tokens of a mobile-client session.
type ClientAppTokens struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// LoginAttempt is one immutable audit record of a single authentication
// attempt. After creation the only permitted mutations are the one-shot
// token attachment following a success and setting Invoked on logout.
type LoginAttempt struct {
	ID              string           `db:"id"`
	IP              string           `db:"ip"`
	UserAgent       string           `db:"user_agent"`
	Address         *Address         `db:"address"`
	SiteCode        SiteCode         `db:"site_code"`
	IsAdministrator bool             `db:"is_administrator"`
	Success         bool             `db:"success"`
	FailedReason    *string          `db:"failed_reason"`
	AttemptTime     time.Time        `db:"attempt_time"`
	SessionTokens   *SessionTokens   `db:"session_tokens"`
	ClientAppTokens *ClientAppTokens `db:"client_app_tokens"`
	Invoked         bool             `db:"invoked"`
	PasswordID      *string          `db:"password_id"`
}

// Revoked reports whether the attempt's tokens must fail verification
// regardless of cryptographic validity.
func (a *LoginAttempt) Revoked() bool {
	return a == nil || a.Invoked
}
