package domain

import "time"

// AccessToken is one issuance of a portal token. Expiry is derived from
// ExpiresAt; revocation is the only mutation after insert.
type AccessToken struct {
	ID        string     `json:"id"`
	CaseID    string     `json:"case_id"`
	Value     string     `json:"-"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (t AccessToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t AccessToken) ActiveAt(now time.Time) bool {
	return t.RevokedAt == nil && !t.ExpiredAt(now)
}

type TokenValidation struct {
	CaseID    string    `json:"case_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
}
