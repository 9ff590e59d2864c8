// Package indexer consumes association notifications and maintains a small
// read model: per-kind counters and the last event seen for each token. It
// is the in-process counterpart of the external indexers the event bus
// exists for.
package indexer

import (
	"context"
	"log/slog"
	"sync"

	"AgentBind-Chain/internal/association"
	xerrors "AgentBind-Chain/internal/errors"
	"AgentBind-Chain/internal/observability/alerting"
	"AgentBind-Chain/pkg/logger"
)

// Stats is a snapshot of the indexer's read model, served on the stats
// endpoint.
type Stats struct {
	AgentUpdates  uint64 `json:"agent_updates"`
	PromptUpdates uint64 `json:"prompt_updates"`
	TokensSeen    int    `json:"tokens_seen"`
	Failures      uint64 `json:"failures"`
}

// Indexer drains an event source with a pool of workers.
type Indexer struct {
	source      association.Source
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher

	mu         sync.RWMutex
	agentSeen  uint64
	promptSeen uint64
	failures   uint64
	lastByTok  map[string]association.Event
}

// Option configures optional Indexer behaviour.
type Option func(*Indexer)

// WithWorkerCount sets the number of consuming goroutines.
func WithWorkerCount(workers int) Option {
	return func(i *Indexer) {
		if workers > 0 {
			i.workerCount = workers
		}
	}
}

// WithLogger overrides the indexer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Indexer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithAlertDispatcher wires an alert dispatcher for handler failures.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(i *Indexer) {
		i.alerter = dispatcher
	}
}

// New constructs an Indexer over the given source.
func New(source association.Source, opts ...Option) *Indexer {
	idx := &Indexer{
		source:      source,
		workerCount: 1,
		logger:      logger.Named("indexer"),
		lastByTok:   make(map[string]association.Event),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(idx)
		}
	}
	return idx
}

// Start runs the consume loop until the context is cancelled.
func (i *Indexer) Start(ctx context.Context) error {
	if i.source == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "indexer has no event source")
	}
	return i.source.Consume(ctx, i.workerCount, i.handle)
}

func (i *Indexer) handle(ctx context.Context, event association.Event) error {
	if event.TokenID == nil {
		i.recordFailure(ctx, event, xerrors.New(xerrors.CodeInvalidArgument, "event without token id"))
		return nil
	}

	i.mu.Lock()
	switch event.Kind {
	case association.EventAgentUpdated:
		i.agentSeen++
	case association.EventPromptUpdated:
		i.promptSeen++
	default:
		i.mu.Unlock()
		i.recordFailure(ctx, event, xerrors.New(xerrors.CodeInvalidArgument, "unknown event kind"))
		return nil
	}
	i.lastByTok[event.TokenID.String()] = event
	i.mu.Unlock()

	i.logger.Debug("event indexed",
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
		slog.String("token_id", event.TokenID.String()),
	)
	return nil
}

func (i *Indexer) recordFailure(ctx context.Context, event association.Event, err error) {
	i.mu.Lock()
	i.failures++
	i.mu.Unlock()

	i.logger.Error("event rejected",
		slog.String("event_id", event.ID),
		slog.Any("error", err),
	)
	if i.alerter != nil && xerrors.ShouldAlert(err) {
		_ = i.alerter.Notify(ctx, alerting.Event{
			Code:     xerrors.CodeOf(err),
			Message:  err.Error(),
			Severity: xerrors.SeverityOf(err),
		})
	}
}

// Stats returns a snapshot of the read model.
func (i *Indexer) Stats() Stats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Stats{
		AgentUpdates:  i.agentSeen,
		PromptUpdates: i.promptSeen,
		TokensSeen:    len(i.lastByTok),
		Failures:      i.failures,
	}
}

// LastEvent returns the most recent event indexed for a token.
func (i *Indexer) LastEvent(tokenID string) (association.Event, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	event, ok := i.lastByTok[tokenID]
	return event, ok
}
