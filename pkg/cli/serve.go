package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/slipway-ci/slipway/pkg/cli/config"
	controller "github.com/slipway-ci/slipway/pkg/controller/http"
	githubinfra "github.com/slipway-ci/slipway/pkg/infra/github"
	"github.com/slipway-ci/slipway/pkg/infra/index"
	"github.com/slipway-ci/slipway/pkg/infra/store"
	"github.com/slipway-ci/slipway/pkg/infra/toolchain"
	"github.com/slipway-ci/slipway/pkg/policy"
	"github.com/slipway-ci/slipway/pkg/usecase"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		githubCfg config.GitHub
		indexCfg  config.Index
		storeCfg  config.Store
		policyCfg config.Policy
		sentryCfg config.Sentry
	)

	flags := append(serverCfg.Flags(), githubCfg.Flags()...)
	flags = append(flags, indexCfg.Flags()...)
	flags = append(flags, storeCfg.Flags()...)
	flags = append(flags, policyCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the webhook listener",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting slipway server",
				slog.String("addr", serverCfg.Addr),
			)

			if err := sentryCfg.Configure(); err != nil {
				return err
			}
			defer sentry.Flush(2 * time.Second)

			registry, err := policy.LoadRegistry(policyCfg.RegistryFile)
			if err != nil {
				return err
			}

			runStore, err := store.New(storeCfg.Path)
			if err != nil {
				return err
			}
			defer runStore.Close()

			privateKey, err := githubCfg.PrivateKey()
			if err != nil {
				return err
			}
			source, err := githubinfra.NewClient(githubCfg.AppID, githubCfg.InstallationID, privateKey)
			if err != nil {
				return err
			}

			signingKey, err := indexCfg.SigningKey()
			if err != nil {
				return err
			}
			issuer, err := index.NewIssuer(signingKey, indexCfg.IssuerURL)
			if err != nil {
				return err
			}

			var clientOpts []index.ClientOption
			if indexCfg.MintURL != "" {
				clientOpts = append(clientOpts, index.WithMintURL(indexCfg.MintURL))
			}
			indexClient := index.NewClient(clientOpts...)

			publishUC := usecase.NewPublish(
				source,
				toolchain.New(),
				issuer,
				indexClient,
				runStore,
				registry,
			)
			webhookUC := usecase.NewWebhook(runStore, publishUC, registry)

			server, err := controller.NewServer(
				ctx,
				webhookUC,
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(githubCfg.WebhookSecret),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down...")
			case sig := <-sigChan:
				logger.Info("Signal received, shutting down...", slog.Any("signal", sig))
			}

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
