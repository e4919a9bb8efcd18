package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"homework-bot/internal/config"
	"homework-bot/internal/database"
	"homework-bot/internal/models"
	"homework-bot/pkg/logger"

	"gopkg.in/telebot.v4"
)

const historyLimit = 5

const commandList = "Команды:\n" +
	"- /status - последний известный статус\n" +
	"- /history - последние изменения\n" +
	"- /help - справка"

type Bot struct {
	settings telebot.Settings
	cfg      config.TelegramConfig
	repo     *database.StatusRepository
	tbot     *telebot.Bot
}

func New(cfg config.TelegramConfig, repo *database.StatusRepository) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	return &Bot{
		cfg:  cfg,
		repo: repo,
		settings: telebot.Settings{
			Token:  cfg.Token,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		},
	}, nil
}

func (b *Bot) Start() (*telebot.Bot, error) {
	tbot, err := telebot.NewBot(b.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b.tbot = tbot
	b.setupHandlers(tbot)

	go tbot.Start()

	return tbot, nil
}

func (b *Bot) setupHandlers(bot *telebot.Bot) {
	bot.Use(b.restrictToChat)

	bot.Handle("/start", b.handleStart)
	bot.Handle("/status", b.handleStatus)
	bot.Handle("/history", b.handleHistory)
	bot.Handle("/help", b.handleHelp)

	bot.Handle(telebot.OnText, func(c telebot.Context) error {
		logger.Info("Incoming text message",
			logger.Int64("user_id", c.Sender().ID),
			logger.String("text", c.Text()),
		)
		return c.Send("Я понимаю только команды. Попробуй /help.")
	})
}

// restrictToChat drops updates from any chat other than the configured one.
func (b *Bot) restrictToChat(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		chat := c.Chat()
		if chat == nil || chat.ID != b.cfg.ChatID {
			logger.Debug("Ignoring update from foreign chat")
			return nil
		}
		return next(c)
	}
}

// Notify sends a message to the configured chat and reports whether it
// was delivered. Callers decide what a failed delivery means.
func (b *Bot) Notify(text string) bool {
	if b.tbot == nil {
		logger.Error("Notify called before bot start")
		return false
	}

	if _, err := b.tbot.Send(&telebot.Chat{ID: b.cfg.ChatID}, text); err != nil {
		logger.Error("Failed to send notification", logger.Err(err))
		return false
	}

	logger.Debug("Notification sent", logger.Int64("chat_id", b.cfg.ChatID))
	return true
}

func (b *Bot) handleStart(c telebot.Context) error {
	welcome := "Привет! Я слежу за статусом проверки домашней работы " +
		"и напишу сюда, когда он изменится.\n\n" + commandList
	return c.Send(welcome)
}

func (b *Bot) handleStatus(c telebot.Context) error {
	rec, err := b.repo.Latest(context.Background())
	if err != nil {
		if errors.Is(err, database.ErrNoStatusEvents) {
			return c.Send("Пока нет ни одной записи о проверке.")
		}
		logger.Error("Failed to load latest status", logger.Err(err))
		return c.Send("Не получилось прочитать журнал. Попробуй позже.")
	}

	return c.Send(fmt.Sprintf("%s\n\nОбновлено: %s",
		rec.Message, rec.ChangedAt.Format("02.01.2006 15:04")))
}

func (b *Bot) handleHistory(c telebot.Context) error {
	ctx := context.Background()

	records, err := b.repo.Recent(ctx, historyLimit)
	if err != nil {
		logger.Error("Failed to load history", logger.Err(err))
		return c.Send("Не получилось прочитать журнал. Попробуй позже.")
	}

	total, err := b.repo.Count(ctx)
	if err != nil {
		logger.Error("Failed to count status events", logger.Err(err))
		total = len(records)
	}

	return c.Send(formatHistory(records, total))
}

func (b *Bot) handleHelp(c telebot.Context) error {
	return c.Send("Я бот для отслеживания статуса проверки домашней работы.\n\n" + commandList)
}

func formatHistory(records []models.StatusRecord, total int) string {
	if len(records) == 0 {
		return "Пока нет ни одной записи о проверке."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Всего изменений: %d\n\n", total)
	for _, rec := range records {
		fmt.Fprintf(&sb, "%s  %s: %s\n",
			rec.ChangedAt.Format("02.01 15:04"), rec.HomeworkName, rec.Status)
	}
	return strings.TrimRight(sb.String(), "\n")
}
