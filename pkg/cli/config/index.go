package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Index holds trusted-publishing configuration
type Index struct {
	IssuerURL      string
	SigningKeyFile string
	MintURL        string
}

// Flags returns CLI flags for index configuration
func (c *Index) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "token-issuer",
			Usage:       "Issuer URL embedded in identity tokens",
			Value:       "https://slipway.local",
			Destination: &c.IssuerURL,
			Sources:     cli.EnvVars("SLIPWAY_TOKEN_ISSUER"),
		},
		&cli.StringFlag{
			Name:        "signing-key-file",
			Usage:       "Path to the RSA private key (PEM) signing identity tokens",
			Required:    true,
			Destination: &c.SigningKeyFile,
			Sources:     cli.EnvVars("SLIPWAY_SIGNING_KEY_FILE"),
		},
		&cli.StringFlag{
			Name:        "mint-url",
			Usage:       "Token exchange endpoint (default: derived from the manifest index URL)",
			Destination: &c.MintURL,
			Sources:     cli.EnvVars("SLIPWAY_MINT_URL"),
		},
	}
}

// SigningKey reads the token signing key file.
func (c *Index) SigningKey() ([]byte, error) {
	data, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token signing key",
			goerr.V("path", c.SigningKeyFile))
	}
	return data, nil
}
