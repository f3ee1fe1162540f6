package model

import "time"

// RunIdentity is the claim set bound into the identity token of a single
// pipeline run. At most one identity token is minted per run.
type RunIdentity struct {
	RunID       string
	Repository  string
	Project     string
	Environment string
	Audience    string
}

// IdentityToken is a short-lived signed token proving a run's identity to
// the index. It lives in memory only and is never written to the run store;
// the masq tag keeps it out of logs.
type IdentityToken struct {
	Raw       string `masq:"secret"`
	ExpiresAt time.Time
}

// UploadToken is the run-scoped credential minted by the index in exchange
// for an identity token.
type UploadToken struct {
	Value     string `masq:"secret"`
	ExpiresAt time.Time
}

// Expired reports whether the upload token is past its lifetime.
func (t *UploadToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
