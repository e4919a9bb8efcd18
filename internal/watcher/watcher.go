package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homework-bot/internal/config"
	"homework-bot/internal/models"
	"homework-bot/internal/practicum"
	"homework-bot/internal/queue"
	"homework-bot/pkg/logger"
)

var ErrMissingName = errors.New("homework has no name")

// UnknownStatusError means the API returned a status the verdict table
// does not know about.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unexpected homework status: %q", e.Status)
}

type API interface {
	Fetch(ctx context.Context, from int64) (*practicum.StatusResponse, error)
}

type Notifier interface {
	Notify(text string) bool
}

type Events interface {
	PublishStatusEvent(ctx context.Context, event *queue.StatusEvent) error
}

// Watcher polls the homework API and relays status changes to the chat.
// State lives in memory only: the reporting window restarts on boot.
type Watcher struct {
	cfg      config.WatcherConfig
	api      API
	notifier Notifier
	events   Events
	now      func() time.Time

	timestamp   int64
	lastMessage string
}

func New(cfg config.WatcherConfig, api API, notifier Notifier, events Events, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		api:      api,
		notifier: notifier,
		events:   events,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

type Option func(*Watcher)

func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		w.now = now
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.Enabled {
		return nil
	}

	w.timestamp = w.now().Unix()
	w.lastMessage = ""

	logger.Info("Watcher started",
		logger.Duration("poll_interval", w.cfg.PollInterval),
		logger.Int64("from", w.timestamp),
	)

	w.cycle(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Watcher) cycle(ctx context.Context) {
	if err := w.checkOnce(ctx); err != nil {
		// A canceled fetch means shutdown, not an API failure.
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("Check cycle failed", logger.Err(err))
		w.reportFailure(err)
	}
}

func (w *Watcher) checkOnce(ctx context.Context) error {
	resp, err := w.api.Fetch(ctx, w.timestamp)
	if err != nil {
		return err
	}

	if len(resp.Homeworks) == 0 {
		logger.Debug("No homework updates")
		return nil
	}

	// Only the most recent record matters: the API returns newest first.
	homework := &resp.Homeworks[0]

	message, err := FormatStatus(homework)
	if err != nil {
		return err
	}

	if message == w.lastMessage {
		logger.Debug("Status unchanged, skipping notification")
		return nil
	}

	if !w.notifier.Notify(message) {
		// Keep the window: the same change is picked up next cycle.
		logger.Warn("Notification not delivered, keeping window",
			logger.String("homework", homework.HomeworkName),
		)
		return nil
	}

	w.lastMessage = message
	if resp.CurrentDate > 0 {
		w.timestamp = resp.CurrentDate
	}

	logger.Info("Status change delivered",
		logger.String("homework", homework.HomeworkName),
		logger.String("status", string(homework.Status)),
	)

	w.publishEvent(ctx, homework, message)
	return nil
}

// reportFailure relays an operational error to the chat, deduplicated the
// same way as status notifications.
func (w *Watcher) reportFailure(cause error) {
	message := fmt.Sprintf("Сбой в работе программы: %s", cause)
	if message == w.lastMessage {
		return
	}
	if w.notifier.Notify(message) {
		w.lastMessage = message
	}
}

func (w *Watcher) publishEvent(ctx context.Context, homework *models.Homework, message string) {
	if w.events == nil {
		return
	}

	event := &queue.StatusEvent{
		HomeworkName: homework.HomeworkName,
		Status:       string(homework.Status),
		Message:      message,
		ChangedAt:    w.now().UTC(),
	}
	if err := w.events.PublishStatusEvent(ctx, event); err != nil {
		// Journaling is best-effort and never affects the loop state.
		logger.Error("Failed to publish status event", logger.Err(err))
	}
}

// FormatStatus renders the chat notification for a homework record.
func FormatStatus(homework *models.Homework) (string, error) {
	if homework.HomeworkName == "" {
		return "", ErrMissingName
	}

	verdict, ok := models.Verdicts[homework.Status]
	if !ok {
		return "", &UnknownStatusError{Status: string(homework.Status)}
	}

	return fmt.Sprintf("Изменился статус проверки работы \"%s\". %s",
		homework.HomeworkName, verdict), nil
}
