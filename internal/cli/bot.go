package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/spf13/cobra"

	"task-manager/internal/bot"
	"task-manager/internal/logger"
)

var errMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

func NewBotCommand(rootOpts *RootOptions) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot front-end against the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if cfg.Telegram.Token == "" {
				return errMissingBotToken
			}

			api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
			if err != nil {
				return fmt.Errorf("connect to telegram: %w", err)
			}
			api.Debug = debug

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info(ctx, "telegram bot authorized", "username", api.Self.UserName, "api", cfg.Client.APIURL)
			b := bot.New(cfg.Client.APIURL, cfg.Client.Timeout, bot.TelegramSender{API: api})
			return b.Run(ctx, api)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "log raw Telegram API traffic")
	return cmd
}
