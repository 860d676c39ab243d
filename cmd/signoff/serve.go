package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/signoff/internal/api"
	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/identity"
	"github.com/zulandar/signoff/internal/llm"
	"github.com/zulandar/signoff/internal/telegraph"
	discordgw "github.com/zulandar/signoff/internal/telegraph/discord"
	slackgw "github.com/zulandar/signoff/internal/telegraph/slack"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat assistant and the injection API",
		Long:  "Connects to the configured chat platform, answers reviewers, and serves the HTTP injection API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "signoff.yaml", "path to Signoff config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	a, err := openApp(configPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	gw, err := createGateway(a.cfg, a.log)
	if err != nil {
		return err
	}
	svc, err := llm.New(a.cfg.LLM, a.log)
	if err != nil {
		return err
	}
	resolver, err := buildResolver(a.cfg, gw)
	if err != nil {
		return err
	}

	orch, err := telegraph.NewOrchestrator(telegraph.OrchestratorOpts{
		Gateway:        gw,
		Store:          a.store,
		Queue:          a.queue,
		Directory:      a.dir,
		Flags:          a.flags,
		LLM:            svc,
		Resolver:       resolver,
		Audit:          a.db,
		Logger:         a.log,
		TypingInterval: time.Duration(a.cfg.Gateway.TypingIntervalMs) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	daemon, err := telegraph.NewDaemon(telegraph.DaemonOpts{
		Gateway:      gw,
		Orchestrator: orch,
		Store:        a.store,
		Directory:    a.dir,
		Reminders:    a.cfg.Reminders,
		Logger:       a.log,
		Out:          cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	apiErr := make(chan error, 1)
	go func() {
		err := api.Start(ctx, api.StartOpts{
			Injector:  orch,
			Documents: a.store,
			DB:        a.db,
			Port:      a.cfg.API.Port,
			Logger:    a.log,
			Out:       cmd.OutOrStdout(),
		})
		if err != nil {
			a.log.Error("api server stopped", zap.Error(err))
			cancel()
		}
		apiErr <- err
	}()

	runErr := daemon.Run(ctx)
	cancel()
	return errors.Join(runErr, <-apiErr)
}

// createGateway builds the chat gateway for the configured platform.
func createGateway(cfg *config.Config, log *zap.Logger) (telegraph.Gateway, error) {
	switch cfg.Gateway.Platform {
	case "slack":
		return slackgw.New(slackgw.GatewayOpts{
			AppToken: cfg.Gateway.Slack.AppToken,
			BotToken: cfg.Gateway.Slack.BotToken,
			Logger:   log,
		})
	case "discord":
		return discordgw.New(discordgw.GatewayOpts{
			BotToken: cfg.Gateway.Discord.BotToken,
			Logger:   log,
		})
	case "none":
		return telegraph.NewOfflineGateway(), nil
	default:
		return nil, fmt.Errorf("serve: unsupported platform %q", cfg.Gateway.Platform)
	}
}

// buildResolver chains the static directory entries, the gateway's own
// profile lookup (when it has one) and the configured directory service,
// in that order. It returns nil when none is available.
func buildResolver(cfg *config.Config, gw telegraph.Gateway) (identity.Resolver, error) {
	var chain identity.Chain
	if len(cfg.Directory.Static) > 0 {
		chain = append(chain, identity.Static(cfg.Directory.Static))
	}
	if r, ok := gw.(identity.Resolver); ok {
		chain = append(chain, r)
	}
	if cfg.Directory.Enabled() {
		graph, err := identity.NewGraph(identity.GraphOpts{
			TokenURL:     cfg.Directory.TokenURL,
			ClientID:     cfg.Directory.ClientID,
			ClientSecret: cfg.Directory.ClientSecret,
			Scopes:       cfg.Directory.Scopes,
			UserURL:      cfg.Directory.UserURL,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, graph)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}
