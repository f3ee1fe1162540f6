package config

import "github.com/urfave/cli/v3"

// Policy holds trusted publisher registry configuration
type Policy struct {
	RegistryFile string
}

// Flags returns CLI flags for policy configuration
func (c *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "publishers-file",
			Usage:       "Path to the trusted publisher registry (TOML)",
			Required:    true,
			Destination: &c.RegistryFile,
			Sources:     cli.EnvVars("SLIPWAY_PUBLISHERS_FILE"),
		},
	}
}
