package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/internal/config"
	"github.com/MarkoPoloResearchLab/starpoints/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagBotToken       = "bot-token"
	flagAPIBaseURL     = "api-base-url"
	flagTimeout        = "timeout"
	flagAppURL         = "app-url"
	flagWebhookSecret  = "webhook-secret"
	flagDropPending    = "drop-pending-updates"
	envPrefix          = "STARPOINTS"
	defaultCallTimeout = 10 * time.Second
)

var (
	allowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}

	errWebhookMismatch = errors.New("webhook url mismatch")
)

type webhookAPI interface {
	SetWebhook(ctx context.Context, config telegram.WebhookConfig) error
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
	GetWebhookInfo(ctx context.Context) (tgbotapi.WebhookInfo, error)
}

type clientFactory func(v *viper.Viper) (webhookAPI, error)

func main() {
	cmd := newRootCommand(newBotClient)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "webhookctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(factory clientFactory) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "webhookctl",
		Short:         "Manage the Telegram webhook of the points bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindEnv(flagBotToken, envPrefix+"_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
				return err
			}
			if err := v.BindEnv(flagAppURL, envPrefix+"_APP_URL", "NEXT_PUBLIC_APP_URL"); err != nil {
				return err
			}
			return bindFlags(cmd, v)
		},
	}
	cmd.PersistentFlags().String(flagBotToken, "", "Telegram bot token (required)")
	cmd.PersistentFlags().String(flagAPIBaseURL, telegram.DefaultAPIBaseURL, "Bot API base URL")
	cmd.PersistentFlags().Duration(flagTimeout, defaultCallTimeout, "Bot API request timeout")

	cmd.AddCommand(newSetCommand(v, factory), newDeleteCommand(v, factory), newInfoCommand(v, factory))
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for _, name := range []string{flagBotToken, flagAPIBaseURL, flagTimeout, flagAppURL, flagWebhookSecret, flagDropPending} {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(name, flag); err != nil {
			return err
		}
	}
	return nil
}

func newSetCommand(v *viper.Viper, factory clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Point the bot webhook at <app-url>/api/telegram-webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			webhookURL, err := config.Config{AppURL: v.GetString(flagAppURL)}.WebhookURL()
			if err != nil {
				return err
			}
			client, err := factory(v)
			if err != nil {
				return err
			}
			return setWebhook(cmd.Context(), cmd.OutOrStdout(), client, telegram.WebhookConfig{
				URL:                webhookURL,
				SecretToken:        v.GetString(flagWebhookSecret),
				AllowedUpdates:     allowedUpdates,
				DropPendingUpdates: v.GetBool(flagDropPending),
			})
		},
	}
	cmd.Flags().String(flagAppURL, "", "public app URL (required)")
	cmd.Flags().String(flagWebhookSecret, "", "secret token Telegram echoes in X-Telegram-Bot-Api-Secret-Token")
	cmd.Flags().Bool(flagDropPending, false, "discard updates queued while no webhook was set")
	return cmd
}

func newDeleteCommand(v *viper.Viper, factory clientFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the bot webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := factory(v)
			if err != nil {
				return err
			}
			if err := client.DeleteWebhook(cmd.Context(), v.GetBool(flagDropPending)); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	cmd.Flags().Bool(flagDropPending, false, "discard queued updates")
	return cmd
}

func newInfoCommand(v *viper.Viper, factory clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := factory(v)
			if err != nil {
				return err
			}
			info, err := client.GetWebhookInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("get webhook info: %w", err)
			}
			printWebhookInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

// setWebhook replaces any existing registration, then verifies Telegram reports the new URL.
func setWebhook(ctx context.Context, out io.Writer, client webhookAPI, webhook telegram.WebhookConfig) error {
	fmt.Fprintf(out, "webhook url: %s\n", webhook.URL)
	if err := client.DeleteWebhook(ctx, false); err != nil {
		fmt.Fprintf(out, "delete old webhook: %v\n", err)
	}
	if err := client.SetWebhook(ctx, webhook); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	fmt.Fprintln(out, "webhook set")
	info, err := client.GetWebhookInfo(ctx)
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}
	printWebhookInfo(out, info)
	if info.URL != webhook.URL {
		return fmt.Errorf("%w: telegram reports %q", errWebhookMismatch, info.URL)
	}
	return nil
}

func printWebhookInfo(out io.Writer, info tgbotapi.WebhookInfo) {
	url := info.URL
	if url == "" {
		url = "not set"
	}
	lastError := info.LastErrorMessage
	if lastError == "" {
		lastError = "none"
	}
	fmt.Fprintf(out, "url: %s\npending updates: %d\nlast error: %s\n", url, info.PendingUpdateCount, lastError)
}

func newBotClient(v *viper.Viper) (webhookAPI, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	client, err := telegram.NewClient(telegram.ClientConfig{
		Token:   v.GetString(flagBotToken),
		BaseURL: v.GetString(flagAPIBaseURL),
		Timeout: v.GetDuration(flagTimeout),
	}, logger.Named("telegram"))
	if err != nil {
		return nil, err
	}
	return client, nil
}
