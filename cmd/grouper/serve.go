package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grouperhq/grouper/internal/auth"
	"github.com/grouperhq/grouper/internal/config"
	"github.com/grouperhq/grouper/internal/db"
	"github.com/grouperhq/grouper/internal/notify"
	"github.com/grouperhq/grouper/internal/plan"
	"github.com/grouperhq/grouper/internal/server"
	"github.com/grouperhq/grouper/internal/sweep"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Grouper HTTP server",
		Long:  "Serves the project creation and plan retry endpoints, plus the stale-pending sweeper when enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "grouper.yaml", "path to Grouper config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	if cfg.Auth.URL == "" {
		return fmt.Errorf("auth.url is required to serve")
	}
	verifier := auth.NewHTTPVerifier(cfg.Auth.URL, cfg.Auth.AnonKey)

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	if generator.Stub() {
		fmt.Fprintln(out, "Plan generation running in stub mode")
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer notifier.Close()
	}

	srv, err := server.New(server.Opts{
		DB:             gormDB,
		Verifier:       verifier,
		Generator:      generator,
		Notifier:       notifier,
		Model:          cfg.OpenAI.Model,
		AllowDebugSkip: cfg.OpenAI.DebugAllowSkip,
		Port:           cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sweeper.Enabled {
		sweeper := sweep.New(gormDB, cfg.Sweeper.Cron,
			time.Duration(cfg.Sweeper.StaleAfterMinutes)*time.Minute)
		go sweeper.Run(ctx)
		fmt.Fprintf(out, "Sweeper enabled (%s, stale after %dm)\n", cfg.Sweeper.Cron, cfg.Sweeper.StaleAfterMinutes)
	}

	fmt.Fprintf(out, "Grouper listening on :%d\n", cfg.Server.Port)
	return srv.Start(ctx)
}

// buildGenerator assembles the plan generator from config. The API key comes
// from the environment, never the config file.
func buildGenerator(cfg *config.Config) (*plan.Generator, error) {
	opts := plan.GeneratorOpts{
		UseStub: cfg.OpenAI.UseStub,
		Timeout: time.Duration(cfg.OpenAI.TimeoutMS) * time.Millisecond,
	}
	if !cfg.OpenAI.UseStub {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required unless openai.use_stub is set")
		}
		var clientOpts []plan.ClientOption
		if cfg.OpenAI.BaseURL != "" {
			clientOpts = append(clientOpts, plan.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		opts.Backend = plan.NewOpenAIClient(apiKey, cfg.OpenAI.Model, clientOpts...)
	}
	return plan.NewGenerator(opts), nil
}

// buildNotifier assembles the outcome notifier from config. Returns nil when
// no platform is configured.
func buildNotifier(cfg *config.Config) (notify.Adapter, error) {
	var adapters []notify.Adapter

	if cfg.Notify.Slack.BotToken != "" {
		a, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if cfg.Notify.Discord.BotToken != "" {
		a, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if len(adapters) == 0 {
		return nil, nil
	}
	return notify.NewMulti(adapters...), nil
}
