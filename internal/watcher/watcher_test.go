package watcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"homework-bot/internal/config"
	"homework-bot/internal/models"
	"homework-bot/internal/practicum"
	"homework-bot/internal/queue"
)

type fetchResult struct {
	resp *practicum.StatusResponse
	err  error
}

// fakeAPI replays queued results, repeating the last one forever.
type fakeAPI struct {
	results []fetchResult
	calls   []int64
}

func (f *fakeAPI) Fetch(ctx context.Context, from int64) (*practicum.StatusResponse, error) {
	f.calls = append(f.calls, from)
	if len(f.results) == 0 {
		return &practicum.StatusResponse{}, nil
	}
	next := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return next.resp, next.err
}

type fakeNotifier struct {
	fail     bool
	attempts []string
}

func (f *fakeNotifier) Notify(text string) bool {
	f.attempts = append(f.attempts, text)
	return !f.fail
}

type fakeEvents struct {
	err    error
	events []*queue.StatusEvent
}

func (f *fakeEvents) PublishStatusEvent(ctx context.Context, event *queue.StatusEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func approvedResponse(name string, currentDate int64) *practicum.StatusResponse {
	return &practicum.StatusResponse{
		Homeworks: []models.Homework{
			{HomeworkName: name, Status: models.StatusApproved},
		},
		CurrentDate: currentDate,
	}
}

func testWatcher(api *fakeAPI, notifier *fakeNotifier, events Events) *Watcher {
	w := New(config.WatcherConfig{Enabled: true, PollInterval: time.Minute}, api, notifier, events)
	w.timestamp = 100
	return w
}

func TestNotifiesOnStatusChange(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{{resp: approvedResponse("hw01", 200)}}}
	notifier := &fakeNotifier{}
	events := &fakeEvents{}
	w := testWatcher(api, notifier, events)

	w.cycle(context.Background())

	want := `Изменился статус проверки работы "hw01". Работа проверена: ревьюеру всё понравилось. Ура!`
	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.attempts))
	}
	if notifier.attempts[0] != want {
		t.Errorf("Notification = %q, want %q", notifier.attempts[0], want)
	}
	if w.timestamp != 200 {
		t.Errorf("Expected timestamp advanced to 200, got %d", w.timestamp)
	}
	if w.lastMessage != want {
		t.Errorf("Expected lastMessage updated, got %q", w.lastMessage)
	}
	if len(events.events) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(events.events))
	}
	if events.events[0].HomeworkName != "hw01" || events.events[0].Status != "approved" {
		t.Errorf("Unexpected event: %+v", events.events[0])
	}
}

func TestDuplicateStatusSkipped(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{{resp: approvedResponse("hw01", 200)}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())
	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Errorf("Expected 1 notification for repeated status, got %d", len(notifier.attempts))
	}
	if len(api.calls) != 2 || api.calls[0] != 100 || api.calls[1] != 200 {
		t.Errorf("Unexpected fetch windows: %v", api.calls)
	}
}

func TestDeliveryFailureKeepsWindow(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{{resp: approvedResponse("hw01", 200)}}}
	notifier := &fakeNotifier{fail: true}
	events := &fakeEvents{}
	w := testWatcher(api, notifier, events)

	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(notifier.attempts))
	}
	if w.lastMessage != "" {
		t.Errorf("Expected lastMessage untouched after failed delivery, got %q", w.lastMessage)
	}
	if w.timestamp != 100 {
		t.Errorf("Expected timestamp untouched after failed delivery, got %d", w.timestamp)
	}
	if len(events.events) != 0 {
		t.Errorf("Expected no events after failed delivery, got %d", len(events.events))
	}

	// Next cycle redelivers the same change.
	notifier.fail = false
	w.cycle(context.Background())

	if len(notifier.attempts) != 2 {
		t.Fatalf("Expected redelivery attempt, got %d attempts", len(notifier.attempts))
	}
	if w.timestamp != 200 {
		t.Errorf("Expected timestamp advanced after redelivery, got %d", w.timestamp)
	}
}

func TestEmptyHomeworks(t *testing.T) {
	api := &fakeAPI{}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())

	if len(notifier.attempts) != 0 {
		t.Errorf("Expected no notifications, got %v", notifier.attempts)
	}
	if w.timestamp != 100 {
		t.Errorf("Expected timestamp untouched, got %d", w.timestamp)
	}
}

func TestCurrentDateAbsent(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{{resp: approvedResponse("hw01", 0)}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.attempts))
	}
	if w.timestamp != 100 {
		t.Errorf("Expected timestamp kept when current_date is absent, got %d", w.timestamp)
	}
}

func TestOnlyFirstHomeworkProcessed(t *testing.T) {
	resp := &practicum.StatusResponse{
		Homeworks: []models.Homework{
			{HomeworkName: "hw02", Status: models.StatusReviewing},
			{HomeworkName: "hw01", Status: models.StatusRejected},
		},
		CurrentDate: 200,
	}
	api := &fakeAPI{results: []fetchResult{{resp: resp}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.attempts))
	}
	want := `Изменился статус проверки работы "hw02". Работа взята на проверку ревьюером.`
	if notifier.attempts[0] != want {
		t.Errorf("Notification = %q, want %q", notifier.attempts[0], want)
	}
}

func TestFetchErrorReported(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{
		{err: errors.New("boom")},
		{err: errors.New("boom")},
		{resp: approvedResponse("hw01", 200)},
	}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())
	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected repeated failure to be deduplicated, got %v", notifier.attempts)
	}
	if notifier.attempts[0] != "Сбой в работе программы: boom" {
		t.Errorf("Unexpected failure report: %q", notifier.attempts[0])
	}

	// Recovery replaces the failure report with a status notification.
	w.cycle(context.Background())

	if len(notifier.attempts) != 2 {
		t.Fatalf("Expected recovery notification, got %v", notifier.attempts)
	}
	if w.lastMessage == notifier.attempts[0] {
		t.Error("Expected lastMessage replaced after recovery")
	}
}

func TestInvalidResponseCodeReported(t *testing.T) {
	apiErr := &practicum.InvalidResponseCodeError{
		StatusCode: 503,
		Status:     "503 Service Unavailable",
		Body:       "maintenance",
	}
	api := &fakeAPI{results: []fetchResult{{err: apiErr}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected failure report, got %v", notifier.attempts)
	}
	if !strings.HasPrefix(notifier.attempts[0], "Сбой в работе программы: ") {
		t.Errorf("Expected failure prefix, got %q", notifier.attempts[0])
	}
	if !strings.Contains(notifier.attempts[0], "503") {
		t.Errorf("Expected status code in report, got %q", notifier.attempts[0])
	}
}

func TestFailureReportDeliveryFailure(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{{err: errors.New("boom")}}}
	notifier := &fakeNotifier{fail: true}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())
	w.cycle(context.Background())

	// Undelivered failure reports are not remembered, so both cycles try.
	if len(notifier.attempts) != 2 {
		t.Errorf("Expected 2 attempts, got %d", len(notifier.attempts))
	}
	if w.lastMessage != "" {
		t.Errorf("Expected lastMessage empty, got %q", w.lastMessage)
	}
}

func TestCanceledFetchNotReported(t *testing.T) {
	apiErr := &practicum.ConnectionError{
		Endpoint: "https://example.org/api/",
		Err:      context.Canceled,
	}
	api := &fakeAPI{results: []fetchResult{{err: apiErr}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())

	if len(notifier.attempts) != 0 {
		t.Errorf("Expected no report for a canceled fetch, got %v", notifier.attempts)
	}
	if w.lastMessage != "" {
		t.Errorf("Expected lastMessage untouched, got %q", w.lastMessage)
	}
}

func TestUnknownStatusReported(t *testing.T) {
	resp := &practicum.StatusResponse{
		Homeworks:   []models.Homework{{HomeworkName: "hw01", Status: "graded"}},
		CurrentDate: 200,
	}
	api := &fakeAPI{results: []fetchResult{{resp: resp}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{})

	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected failure report, got %v", notifier.attempts)
	}
	if notifier.attempts[0] != `Сбой в работе программы: unexpected homework status: "graded"` {
		t.Errorf("Unexpected failure report: %q", notifier.attempts[0])
	}
	if w.timestamp != 100 {
		t.Errorf("Expected timestamp untouched on formatting error, got %d", w.timestamp)
	}
}

func TestPublishEventUsesClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{results: []fetchResult{{resp: approvedResponse("hw01", 200)}}}
	events := &fakeEvents{}
	w := New(
		config.WatcherConfig{Enabled: true, PollInterval: time.Minute},
		api, &fakeNotifier{}, events,
		WithClock(func() time.Time { return fixed }),
	)
	w.timestamp = 100

	w.cycle(context.Background())

	if len(events.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events.events))
	}
	if !events.events[0].ChangedAt.Equal(fixed) {
		t.Errorf("ChangedAt = %v, want %v", events.events[0].ChangedAt, fixed)
	}
}

func TestEventPublishFailureDoesNotAffectState(t *testing.T) {
	api := &fakeAPI{results: []fetchResult{{resp: approvedResponse("hw01", 200)}}}
	notifier := &fakeNotifier{}
	w := testWatcher(api, notifier, &fakeEvents{err: errors.New("nats down")})

	w.cycle(context.Background())

	if len(notifier.attempts) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notifier.attempts))
	}
	if w.timestamp != 200 {
		t.Errorf("Expected timestamp advanced despite publish failure, got %d", w.timestamp)
	}
}

func TestStartDisabled(t *testing.T) {
	w := New(config.WatcherConfig{Enabled: false}, &fakeAPI{}, &fakeNotifier{}, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Errorf("Expected nil for disabled watcher, got %v", err)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{}
	w := New(
		config.WatcherConfig{Enabled: true, PollInterval: time.Minute},
		api, &fakeNotifier{}, nil,
		WithClock(func() time.Time { return fixed }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if w.timestamp != fixed.Unix() {
		t.Errorf("Expected initial timestamp %d, got %d", fixed.Unix(), w.timestamp)
	}
	if len(api.calls) != 1 {
		t.Errorf("Expected exactly the initial check, got %d calls", len(api.calls))
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name     string
		homework models.Homework
		want     string
		wantErr  error
	}{
		{
			name:     "approved",
			homework: models.Homework{HomeworkName: "hw01", Status: models.StatusApproved},
			want:     `Изменился статус проверки работы "hw01". Работа проверена: ревьюеру всё понравилось. Ура!`,
		},
		{
			name:     "reviewing",
			homework: models.Homework{HomeworkName: "hw01", Status: models.StatusReviewing},
			want:     `Изменился статус проверки работы "hw01". Работа взята на проверку ревьюером.`,
		},
		{
			name:     "rejected",
			homework: models.Homework{HomeworkName: "hw01", Status: models.StatusRejected},
			want:     `Изменился статус проверки работы "hw01". Работа проверена: у ревьюера есть замечания.`,
		},
		{
			name:     "missing name",
			homework: models.Homework{Status: models.StatusApproved},
			wantErr:  ErrMissingName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatStatus(&tt.homework)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FormatStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStatusUnknown(t *testing.T) {
	_, err := FormatStatus(&models.Homework{HomeworkName: "hw01", Status: "graded"})

	var statusErr *UnknownStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected UnknownStatusError, got %T: %v", err, err)
	}
	if statusErr.Status != "graded" {
		t.Errorf("Status = %q, want %q", statusErr.Status, "graded")
	}
}
