package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/slipway-ci/slipway/pkg/domain/model"
	"github.com/slipway-ci/slipway/pkg/domain/types"
	"github.com/slipway-ci/slipway/pkg/infra/index"
	"github.com/slipway-ci/slipway/pkg/infra/toolchain"
	"github.com/slipway-ci/slipway/pkg/manifest"
)

// cmdRun executes the pipeline once against a local source tree, without a
// webhook event. Publishing is off by default so the command doubles as a
// pre-release dry run of the build step.
func cmdRun() *cli.Command {
	var (
		sourceDir      string
		manifestName   string
		repository     string
		tagName        string
		prerelease     bool
		publish        bool
		issuerURL      string
		signingKeyFile string
		mintURL        string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the pipeline once against a local source tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "source",
				Usage:       "Source tree to build",
				Value:       ".",
				Destination: &sourceDir,
			},
			&cli.StringFlag{
				Name:        "manifest",
				Usage:       "Manifest file name within the source tree",
				Value:       types.DefaultManifestName,
				Destination: &manifestName,
			},
			&cli.StringFlag{
				Name:        "repository",
				Usage:       "Repository full name stamped into the run identity",
				Value:       "local/local",
				Destination: &repository,
			},
			&cli.StringFlag{
				Name:        "tag",
				Usage:       "Release tag to build, e.g. v1.2.3",
				Required:    true,
				Destination: &tagName,
			},
			&cli.BoolFlag{
				Name:        "prerelease",
				Usage:       "Mark the release as a pre-release",
				Destination: &prerelease,
			},
			&cli.BoolFlag{
				Name:        "publish",
				Usage:       "Upload artifacts after a successful build",
				Destination: &publish,
			},
			&cli.StringFlag{
				Name:        "token-issuer",
				Usage:       "Issuer URL embedded in identity tokens",
				Value:       "https://slipway.local",
				Destination: &issuerURL,
				Sources:     cli.EnvVars("SLIPWAY_TOKEN_ISSUER"),
			},
			&cli.StringFlag{
				Name:        "signing-key-file",
				Usage:       "RSA private key (PEM) for identity tokens; an ephemeral key is generated when unset",
				Destination: &signingKeyFile,
				Sources:     cli.EnvVars("SLIPWAY_SIGNING_KEY_FILE"),
			},
			&cli.StringFlag{
				Name:        "mint-url",
				Usage:       "Token exchange endpoint override",
				Destination: &mintURL,
				Sources:     cli.EnvVars("SLIPWAY_MINT_URL"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			owner, repo, ok := strings.Cut(repository, "/")
			if !ok {
				return goerr.New("repository must be owner/repo", goerr.V("repository", repository))
			}
			rel := &model.Release{
				Owner:      owner,
				Repo:       repo,
				CommitSHA:  "local",
				TagName:    tagName,
				Prerelease: prerelease,
			}

			m, err := manifest.Load(filepath.Join(sourceDir, manifestName), rel)
			if err != nil {
				return err
			}
			stepDone("manifest", m.Project)

			tc := toolchain.New()

			version, err := tc.VerifyRuntime(ctx, m.Runtime)
			if err != nil {
				stepFailed("provision")
				return err
			}
			stepDone("provision", fmt.Sprintf("%s %s", m.Runtime.Command, version))

			artifacts, err := tc.Build(ctx, sourceDir, m.Build)
			if err != nil {
				stepFailed("build")
				return err
			}
			stepDone("build", fmt.Sprintf("%d artifacts", len(artifacts)))
			for _, art := range artifacts {
				fmt.Fprintf(os.Stdout, "    %s  %s (%d bytes)\n", art.SHA256[:12], art.Name, art.Size)
			}

			if !publish {
				fmt.Fprintln(os.Stdout, color.YellowString("publish skipped (use --publish to upload)"))
				return nil
			}

			issuer, err := newRunIssuer(issuerURL, signingKeyFile)
			if err != nil {
				return err
			}

			identity, err := issuer.Issue(ctx, &model.RunIdentity{
				RunID:       uuid.New().String(),
				Repository:  rel.Repository(),
				Project:     m.Project,
				Environment: m.Publish.Environment,
				Audience:    m.Publish.IndexURL,
			})
			if err != nil {
				return err
			}

			var clientOpts []index.ClientOption
			if mintURL != "" {
				clientOpts = append(clientOpts, index.WithMintURL(mintURL))
			}
			client := index.NewClient(clientOpts...)

			uploadToken, err := client.MintUploadToken(ctx, m.Publish.IndexURL, identity)
			if err != nil {
				stepFailed("publish")
				return err
			}
			for _, art := range artifacts {
				if err := client.Upload(ctx, m.Publish.IndexURL, uploadToken, art, m.Project, rel.Version(), m.Publish.SkipExisting); err != nil {
					stepFailed("publish")
					return err
				}
			}
			stepDone("publish", m.Publish.IndexURL)

			logger.Info("Pipeline run complete",
				"project", m.Project,
				"version", rel.Version(),
				"artifacts", len(artifacts),
			)
			return nil
		},
	}
}

func newRunIssuer(issuerURL, signingKeyFile string) (*index.Issuer, error) {
	if signingKeyFile == "" {
		return index.NewEphemeralIssuer(issuerURL)
	}
	pemKey, err := os.ReadFile(signingKeyFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read signing key", goerr.V("path", signingKeyFile))
	}
	return index.NewIssuer(pemKey, issuerURL)
}

func stepDone(name, detail string) {
	fmt.Fprintf(os.Stdout, "%s %-10s %s\n", color.GreenString("✓"), name, detail)
}

func stepFailed(name string) {
	fmt.Fprintf(os.Stdout, "%s %-10s\n", color.RedString("✗"), name)
}
