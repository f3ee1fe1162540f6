package config

import "github.com/urfave/cli/v3"

// Store holds run store configuration
type Store struct {
	Path string
}

// Flags returns CLI flags for store configuration
func (c *Store) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "Path to the SQLite run store (\":memory:\" for ephemeral)",
			Value:       "slipway.db",
			Destination: &c.Path,
			Sources:     cli.EnvVars("SLIPWAY_DB_PATH"),
		},
	}
}
