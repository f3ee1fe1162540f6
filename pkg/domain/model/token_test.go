package model_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/masq"

	"github.com/slipway-ci/slipway/pkg/domain/model"
)

// Tokens are run-scoped credentials; logging a token struct must never
// reveal the raw value.
func TestTokens_RedactedInLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: masq.New(masq.WithTag("secret")),
	}))

	identity := &model.IdentityToken{
		Raw:       "eyJhbGciOiJSUzI1NiJ9.secret-identity-token",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}
	upload := &model.UploadToken{
		Value:     "pypi-secret-upload-token",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}

	logger.Info("publishing", "identity", identity, "upload", upload)

	out := buf.String()
	gt.String(t, out).NotContains("secret-identity-token")
	gt.String(t, out).NotContains("pypi-secret-upload-token")
}

func TestUploadToken_Expired(t *testing.T) {
	now := time.Now()

	token := &model.UploadToken{Value: "x", ExpiresAt: now.Add(time.Minute)}
	gt.Value(t, token.Expired(now)).Equal(false)
	gt.Value(t, token.Expired(now.Add(2*time.Minute))).Equal(true)

	// Zero expiry means the index did not report one
	open := &model.UploadToken{Value: "x"}
	gt.Value(t, open.Expired(now)).Equal(false)
}
