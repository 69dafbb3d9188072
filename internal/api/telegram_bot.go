package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/abelzeko/water-quality/internal/entities"
	"github.com/abelzeko/water-quality/internal/usecases"
)

// QueryHandler answers free-text questions
type QueryHandler interface {
	HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error)
}

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot       *tgbotapi.BotAPI
	service   MonitoringService
	assistant QueryHandler
	admins    map[int64]bool
	logger    *slog.Logger
}

// NewTelegramBot creates a new Telegram bot handler. Only chats in adminChatIDs may use /run.
func NewTelegramBot(botToken string, service MonitoringService, assistant QueryHandler, adminChatIDs []int64, logger *slog.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return newTelegramBot(bot, service, assistant, adminChatIDs, logger), nil
}

func newTelegramBot(bot *tgbotapi.BotAPI, service MonitoringService, assistant QueryHandler, adminChatIDs []int64, logger *slog.Logger) *TelegramBot {
	admins := make(map[int64]bool, len(adminChatIDs))
	for _, id := range adminChatIDs {
		admins[id] = true
	}
	return &TelegramBot{
		bot:       bot,
		service:   service,
		assistant: assistant,
		admins:    admins,
		logger:    logger,
	}
}

// Start listens for Telegram messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) {
	t.logger.Info("authorized on telegram", "account", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()
	t.logger.Info("bot is now listening for messages")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	t.logger.Debug("received message", "chat_id", message.Chat.ID, "user", userName(message), "text", message.Text)

	msg := tgbotapi.NewMessage(message.Chat.ID, t.reply(ctx, message))
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("error sending message", "chat_id", message.Chat.ID, "error", err)
	}
}

func (t *TelegramBot) reply(ctx context.Context, message *tgbotapi.Message) string {
	if !message.IsCommand() {
		return t.handleNonCommand(ctx, message)
	}

	switch message.Command() {
	case "start":
		return "Welcome to the Water Quality Bot! Use /dashboard for the current status or /help for more information."

	case "help":
		return "Available commands:\n" +
			"/start - Start the bot\n" +
			"/reading - Show the latest sensor reading\n" +
			"/prediction - Show the latest daily prediction\n" +
			"/dashboard - Show both\n" +
			"/run [YYYY-MM-DD] - Recompute a day's prediction (operators only)\n" +
			"/help - Show this help message"

	case "reading":
		r, err := t.service.LatestReading(ctx)
		if err != nil {
			return t.failed("reading", err)
		}
		return usecases.FormatReading(r)

	case "prediction":
		p, err := t.service.LatestPrediction(ctx)
		if err != nil {
			return t.failed("prediction", err)
		}
		return usecases.FormatPrediction(p)

	case "dashboard":
		snap, err := t.service.Dashboard(ctx)
		if err != nil {
			return t.failed("dashboard", err)
		}
		return usecases.FormatDashboard(snap)

	case "run":
		return t.handleRunCommand(ctx, message)

	default:
		return "Unknown command. Use /help to see available commands."
	}
}

// handleRunCommand processes /run [YYYY-MM-DD]
func (t *TelegramBot) handleRunCommand(ctx context.Context, message *tgbotapi.Message) string {
	if !t.admins[message.Chat.ID] {
		t.logger.Warn("rejected /run from non-operator chat", "chat_id", message.Chat.ID, "user", userName(message))
		return "Sorry, only operators can trigger a run."
	}

	var day *entities.Day
	if args := strings.TrimSpace(message.CommandArguments()); args != "" {
		d, err := entities.ParseDay(args)
		if errors.Is(err, entities.ErrDayOutOfRange) {
			return fmt.Sprintf("Please pick a day between %d and %d.", entities.MinYear, entities.MaxYear)
		}
		if err != nil {
			return "Please use the YYYY-MM-DD format. Example: /run 2024-01-10"
		}
		day = &d
	}

	res := t.service.TriggerDailyPrediction(ctx, day)
	t.logger.Info("manual run from telegram", "chat_id", message.Chat.ID, "day", res.Day.String(), "status", string(res.Status))
	return usecases.FormatRunResult(res)
}

// handleNonCommand processes regular messages
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message) string {
	if t.assistant == nil || strings.TrimSpace(message.Text) == "" {
		return "I don't understand. Use /help to see available commands."
	}
	answer, err := t.assistant.HandleNaturalLanguageQuery(ctx, message.Text)
	if err != nil {
		return t.failed("answer", err)
	}
	return answer
}

func (t *TelegramBot) failed(what string, err error) string {
	t.logger.Error("bot query failed", "query", what, "error", err)
	return "Error fetching data. Please try again later."
}

func userName(m *tgbotapi.Message) string {
	if m.From == nil {
		return ""
	}
	return m.From.UserName
}
