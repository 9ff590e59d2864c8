package association

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "AgentBind-Chain/internal/errors"
)

// EventKind identifies which association field a notification refers to.
type EventKind string

const (
	EventAgentUpdated  EventKind = "agent_updated"
	EventPromptUpdated EventKind = "prompt_updated"
)

// Event is the notification produced after a successful mutation. Exactly
// one event is emitted per successful update, after the store write; failed
// updates emit nothing.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	TokenID   *big.Int       `json:"token_id"`
	Agent     common.Address `json:"agent,omitempty"`
	Prompt    string         `json:"prompt,omitempty"`
	EmittedAt int64          `json:"emitted_at"`
}

func newAgentUpdated(tokenID *big.Int, agent common.Address) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      EventAgentUpdated,
		TokenID:   new(big.Int).Set(tokenID),
		Agent:     agent,
		EmittedAt: time.Now().Unix(),
	}
}

func newPromptUpdated(tokenID *big.Int, prompt string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      EventPromptUpdated,
		TokenID:   new(big.Int).Set(tokenID),
		Prompt:    prompt,
		EmittedAt: time.Now().Unix(),
	}
}

// Encode serialises the event for transport.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEventPublishFailed, err, "encode event")
	}
	return payload, nil
}

// DecodeEvent parses an event produced by Encode.
func DecodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode event")
	}
	return event, nil
}

// Handler processes one event delivered by a Source.
type Handler func(ctx context.Context, event Event) error

// Sink publishes notification events to external observers.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Source delivers published events to a handler with the given worker
// count, blocking until the context is cancelled.
type Source interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Bus both publishes and delivers events.
type Bus interface {
	Sink
	Source
}
