package types

import (
	"time"
)

// VerifyState records what the post-publish readback check concluded.
// Verification is advisory: a VerifyFailed push is still a successful push.
type VerifyState string

const (
	// VerifyUnknown means verification was not attempted (failed pushes,
	// or readback disabled).
	VerifyUnknown VerifyState = "unknown"
	VerifyPassed  VerifyState = "passed"
	VerifyFailed  VerifyState = "failed"
)

// PushResult is the record of one publish attempt sequence, emitted to the
// outcome sink and stored per site. SiteID is always masked.
type PushResult struct {
	ID           string      `json:"id"`
	Success      bool        `json:"success"`
	SiteID       string      `json:"site_id"`
	PlanName     string      `json:"plan_name"`
	AttemptCount int         `json:"attempt_count"`
	Error        string      `json:"error,omitempty"`
	VerifyState  VerifyState `json:"verify_state"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// SiteConfig is the stored configuration for one energy site. Only the
// sealed form of the API token is ever serialized; the plaintext Token is
// populated transiently after unsealing and never leaves the process.
type SiteConfig struct {
	SiteID   string `json:"site_id"`
	Token    string `json:"-"`
	PlanName string `json:"plan_name,omitempty"`

	// SealedToken is the API token encrypted at rest (see server sealing).
	SealedToken []byte `json:"sealed_token,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// MaskSiteID keeps the first four characters of a site ID and replaces the
// rest with "***" so logs, events and stored results never carry the full ID.
func MaskSiteID(siteID string) string {
	if len(siteID) > 4 {
		siteID = siteID[:4]
	}
	return siteID + "***"
}
