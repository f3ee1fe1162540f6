package index

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"

	"github.com/slipway-ci/slipway/pkg/domain/model"
)

// defaultTokenTTL bounds the identity token lifetime. The token is scoped
// to one run and must not outlive it.
const defaultTokenTTL = 15 * time.Minute

// Issuer mints run-scoped identity tokens. The signing key is the only
// long-lived secret in the system and never leaves this type.
type Issuer struct {
	key    jwk.Key
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption is a functional option for Issuer configuration
type IssuerOption func(*Issuer)

// WithTokenTTL overrides the identity token lifetime
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

// WithNow overrides the clock, for tests
func WithNow(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer from a PEM-encoded RSA private key.
func NewIssuer(pemKey []byte, issuerURL string, opts ...IssuerOption) (*Issuer, error) {
	key, err := jwk.ParseKey(pemKey, jwk.WithPEM(true))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse signing key")
	}
	return newIssuer(key, issuerURL, opts...), nil
}

// NewEphemeralIssuer creates an Issuer with a freshly generated key. Used by
// the one-shot `run` command where no deployment key exists; tokens from an
// ephemeral issuer are only accepted by an index that skips verification
// (i.e. a local test index).
func NewEphemeralIssuer(issuerURL string, opts ...IssuerOption) (*Issuer, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate ephemeral signing key")
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to wrap ephemeral signing key")
	}
	return newIssuer(key, issuerURL, opts...), nil
}

func newIssuer(key jwk.Key, issuerURL string, opts ...IssuerOption) *Issuer {
	issuer := &Issuer{
		key:    key,
		issuer: issuerURL,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Issue mints the identity token for one run. Callers mint at most one token
// per run, immediately before publishing.
func (i *Issuer) Issue(ctx context.Context, identity *model.RunIdentity) (*model.IdentityToken, error) {
	now := i.now()
	expires := now.Add(i.ttl)

	token, err := jwt.NewBuilder().
		Issuer(i.issuer).
		Subject(identity.Repository).
		Audience([]string{identity.Audience}).
		JwtID(identity.RunID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expires).
		Claim("repository", identity.Repository).
		Claim("project", identity.Project).
		Claim("environment", identity.Environment).
		Build()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build identity token", goerr.V("run_id", identity.RunID))
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, i.key))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to sign identity token", goerr.V("run_id", identity.RunID))
	}

	return &model.IdentityToken{
		Raw:       string(signed),
		ExpiresAt: expires,
	}, nil
}

// PublicKey returns the verification key for the issuer, e.g. for
// provisioning a self-hosted index.
func (i *Issuer) PublicKey() (jwk.Key, error) {
	pub, err := i.key.PublicKey()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to derive public key")
	}
	return pub, nil
}
