package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/slipway-ci/slipway/pkg/domain/types"
	"github.com/slipway-ci/slipway/pkg/manifest"
)

func cmdValidate() *cli.Command {
	var manifestPath string

	return &cli.Command{
		Name:  "validate",
		Usage: "Check a pipeline manifest without running it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "manifest",
				Usage:       "Manifest file to validate",
				Value:       types.DefaultManifestName,
				Destination: &manifestPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			m, err := manifest.Load(manifestPath, nil)
			if err != nil {
				fmt.Fprintf(os.Stdout, "%s %s\n", color.RedString("✗"), manifestPath)
				return err
			}

			fmt.Fprintf(os.Stdout, "%s %s\n", color.GreenString("✓"), manifestPath)
			fmt.Fprintf(os.Stdout, "  project:     %s\n", m.Project)
			fmt.Fprintf(os.Stdout, "  runtime:     %s (pinned %s)\n", m.Runtime.Command, m.Runtime.Version)
			fmt.Fprintf(os.Stdout, "  build:       %v\n", m.Build.Command)
			fmt.Fprintf(os.Stdout, "  artifacts:   %s\n", m.Build.Artifacts)
			fmt.Fprintf(os.Stdout, "  index:       %s\n", m.Publish.IndexURL)
			fmt.Fprintf(os.Stdout, "  environment: %s\n", m.Publish.Environment)
			return nil
		},
	}
}
