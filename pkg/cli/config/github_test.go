package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"

	"github.com/slipway-ci/slipway/pkg/cli/config"
)

func TestGitHub_Flags(t *testing.T) {
	var cfg config.GitHub
	cmd := &cli.Command{
		Name:  "test",
		Flags: cfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			return nil
		},
	}

	// App and installation IDs routinely exceed int32, so the flag
	// destinations must bind as int64.
	err := cmd.Run(context.Background(), []string{
		"test",
		"--github-webhook-secret", "s3cret",
		"--github-app-id", "2147483648",
		"--github-installation-id", "9876543210",
		"--github-private-key-file", "key.pem",
	})
	gt.NoError(t, err)
	gt.Value(t, cfg.WebhookSecret).Equal("s3cret")
	gt.Value(t, cfg.AppID).Equal(int64(2147483648))
	gt.Value(t, cfg.InstallationID).Equal(int64(9876543210))
	gt.Value(t, cfg.PrivateKeyFile).Equal("key.pem")
}

func TestGitHub_PrivateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.pem")
	gt.NoError(t, os.WriteFile(path, []byte("fake pem"), 0o600))

	cfg := &config.GitHub{PrivateKeyFile: path}
	key, err := cfg.PrivateKey()
	gt.NoError(t, err)
	gt.Value(t, string(key)).Equal("fake pem")

	cfg.PrivateKeyFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err = cfg.PrivateKey()
	gt.Error(t, err)
}
