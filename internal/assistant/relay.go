package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mathchat/internal/metrics"
	"mathchat/internal/models"
)

// State — состояние одного запроса на дополнение.
type State string

const (
	StateIdle      State = "idle"
	StateRequested State = "requested"
	StateStreaming State = "streaming"
	StateCommitted State = "committed"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// Фиксированные тексты-уведомления. Любой исход запроса — включая таймаут
// и сбой — продвигает историю журнала ровно одним сообщением ассистента,
// участники видят детерминированный результат, а не тишину.
const (
	TimeoutNotice       = "the assistant timed out, please try again"
	FailureNoticeFormat = "the assistant request failed (%s)"
)

// Sink — то, чем релей фиксирует результат и читает контекст. Реализуется
// шлюзом входа; релей никогда не пишет в хранилище и hub напрямую.
type Sink interface {
	CommitAssistant(ctx context.Context, scope models.Scope, content string) (*models.Message, error)
	RecentHistory(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error)
}

// Relay ведёт запрос к апстриму от триггера до единственного
// зафиксированного сообщения ассистента:
// Requested → Streaming → {Committed | TimedOut | Failed}.
// Повторных попыток нет — пользователь перезапускает отправкой заново.
type Relay struct {
	upstream     *Client
	sink         Sink
	timeout      time.Duration
	historyLimit int
	log          zerolog.Logger
}

func NewRelay(upstream *Client, sink Sink, timeout time.Duration, historyLimit int, log zerolog.Logger) *Relay {
	return &Relay{
		upstream:     upstream,
		sink:         sink,
		timeout:      timeout,
		historyLimit: historyLimit,
		log:          log.With().Str("component", "relay").Logger(),
	}
}

// Run выполняет один запрос на дополнение и возвращает терминальное
// состояние. Блокирующая часть — потоковый вызов апстрима — идёт без
// каких-либо блокировок журнала: фиксация и рассылка происходят только
// после того, как поток иссяк.
func (r *Relay) Run(ctx context.Context, scope models.Scope, query string) State {
	state := StateRequested
	started := time.Now()

	window, err := r.sink.RecentHistory(ctx, scope, r.historyLimit)
	if err != nil {
		r.log.Error().Err(err).Str("scope", scope.String()).Msg("read history window")
		window = nil
	}

	upstreamCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	state = StateStreaming
	answer, err := r.upstream.Complete(upstreamCtx, query, historyWindow(window))

	var content string
	switch {
	case err == nil:
		state = StateCommitted
		content = answer
	case errors.Is(err, context.DeadlineExceeded):
		state = StateTimedOut
		content = TimeoutNotice
	default:
		state = StateFailed
		content = fmt.Sprintf(FailureNoticeFormat, failureReason(err))
	}

	metrics.CompletionRequests.WithLabelValues(string(state)).Inc()
	metrics.CompletionDuration.Observe(time.Since(started).Seconds())

	if _, err := r.sink.CommitAssistant(ctx, scope, content); err != nil {
		// Журнал мог исчезнуть, пока шёл поток (удалённая сессия) —
		// фиксировать больше некуда.
		r.log.Warn().Err(err).Str("scope", scope.String()).Msg("commit assistant message")
	}

	r.log.Info().
		Str("scope", scope.String()).
		Str("state", string(state)).
		Dur("took", time.Since(started)).
		Msg("completion finished")

	return state
}

// historyWindow собирает окно контекста: только пользовательские ходы,
// самые свежие, в исходном порядке.
func historyWindow(msgs []models.Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}

// failureReason сводит ошибку к минимальному диагнозу: класс или статус,
// без сырого текста исключения.
func failureReason(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("status %d", statusErr.Code)
	}
	return "connection error"
}
