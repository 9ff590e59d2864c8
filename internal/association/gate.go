package association

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	xerrors "AgentBind-Chain/internal/errors"
	"AgentBind-Chain/internal/observability/alerting"
	"AgentBind-Chain/internal/observability/metrics"
	"AgentBind-Chain/internal/registry"
	"AgentBind-Chain/pkg/logger"
)

// PromptPolicy bounds the prompt payloads a deployment accepts. Zero values
// disable the checks: empty prompts are allowed and length is unbounded.
// Lengths are measured in bytes.
type PromptPolicy struct {
	MinLength int
	MaxLength int
}

// Validate checks a prompt against the policy.
func (p PromptPolicy) Validate(prompt string) error {
	if p.MinLength > 0 && len(prompt) < p.MinLength {
		return xerrors.New(xerrors.CodePromptPolicy, "prompt shorter than configured minimum",
			xerrors.WithMetadata("min_length", itoa(p.MinLength)))
	}
	if p.MaxLength > 0 && len(prompt) > p.MaxLength {
		return xerrors.New(xerrors.CodePromptPolicy, "prompt longer than configured maximum",
			xerrors.WithMetadata("max_length", itoa(p.MaxLength)))
	}
	return nil
}

func itoa(n int) string {
	return big.NewInt(int64(n)).String()
}

// Gate guards every mutation of the association store. It is a pure
// decision layer: ownership state comes from the injected TokenRegistry,
// the current agent from the Store, and the gate itself holds no state
// beyond its configuration. All writes must route through it.
type Gate struct {
	registry registry.TokenRegistry
	store    Store
	sink     Sink
	policy   PromptPolicy
	logger   *slog.Logger
	alerter  alerting.Dispatcher
}

// GateOption configures optional Gate behaviour.
type GateOption func(*Gate)

// WithPromptPolicy sets the deployment prompt length policy.
func WithPromptPolicy(policy PromptPolicy) GateOption {
	return func(g *Gate) {
		g.policy = policy
	}
}

// WithGateLogger overrides the gate's logger.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithAlertDispatcher wires an alert dispatcher for post-commit publish
// failures.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) GateOption {
	return func(g *Gate) {
		g.alerter = dispatcher
	}
}

// NewGate constructs the authorization gate over a registry, store, and
// notification sink.
func NewGate(reg registry.TokenRegistry, store Store, sink Sink, opts ...GateOption) *Gate {
	g := &Gate{
		registry: reg,
		store:    store,
		sink:     sink,
		logger:   logger.Named("gate"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Agent returns the stored agent for an existing token. Unlike the prompt
// read it requires the token to exist in the registry; an unset agent is
// the zero address.
func (g *Gate) Agent(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	if err := g.ready(); err != nil {
		return common.Address{}, err
	}
	if _, err := g.registry.OwnerOf(ctx, tokenID); err != nil {
		return common.Address{}, err
	}
	return g.store.Agent(ctx, tokenID)
}

// Prompt returns the stored prompt. Reads are permissive: a token unknown
// to the registry yields the empty string rather than an error.
func (g *Gate) Prompt(ctx context.Context, tokenID *big.Int) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}
	return g.store.Prompt(ctx, tokenID)
}

// UpdateAgent rebinds the delegate agent of a token. Only the current
// registry-reported owner may do this: approvals and the incumbent agent
// are deliberately insufficient, since whoever controls the agent field
// controls future prompt updates. The new agent must not be the zero
// address. On success the store is updated and exactly one AgentUpdated
// event is emitted.
func (g *Gate) UpdateAgent(ctx context.Context, tokenID *big.Int, caller, newAgent common.Address) error {
	if err := g.ready(); err != nil {
		return err
	}
	owner, err := g.registry.OwnerOf(ctx, tokenID)
	if err != nil {
		return g.reject("update_agent", err)
	}
	if caller != owner {
		return g.reject("update_agent", ErrUnauthorized)
	}
	if newAgent == (common.Address{}) {
		return g.reject("update_agent", ErrInvalidAgent)
	}

	if err := g.store.SetAgent(ctx, tokenID, newAgent); err != nil {
		return g.reject("update_agent", err)
	}
	metrics.ObserveGateDecision("update_agent", "granted")
	g.emit(ctx, newAgentUpdated(tokenID, newAgent))
	return nil
}

// UpdatePrompt rewrites the prompt of a token. The caller must hold one of
// the four recognised authorities: token owner, per-token approved address,
// collection-wide operator for the owner, or the currently bound agent.
// Binding the agent as a valid caller lets it rewrite its own operating
// instructions without owner intervention. On success the store is updated
// and exactly one PromptUpdated event is emitted.
func (g *Gate) UpdatePrompt(ctx context.Context, tokenID *big.Int, caller common.Address, newPrompt string) error {
	if err := g.ready(); err != nil {
		return err
	}
	owner, err := g.registry.OwnerOf(ctx, tokenID)
	if err != nil {
		return g.reject("update_prompt", err)
	}
	authorized, err := g.promptAuthority(ctx, tokenID, owner, caller)
	if err != nil {
		return g.reject("update_prompt", err)
	}
	if !authorized {
		return g.reject("update_prompt", ErrUnauthorized)
	}
	if err := g.policy.Validate(newPrompt); err != nil {
		return g.reject("update_prompt", err)
	}

	if err := g.store.SetPrompt(ctx, tokenID, newPrompt); err != nil {
		return g.reject("update_prompt", err)
	}
	metrics.ObserveGateDecision("update_prompt", "granted")
	g.emit(ctx, newPromptUpdated(tokenID, newPrompt))
	return nil
}

// promptAuthority evaluates the four prompt-update authorities in order of
// decreasing likelihood, stopping at the first match.
func (g *Gate) promptAuthority(ctx context.Context, tokenID *big.Int, owner, caller common.Address) (bool, error) {
	if caller == owner {
		return true, nil
	}
	approved, err := g.registry.GetApproved(ctx, tokenID)
	if err != nil {
		return false, err
	}
	if approved != (common.Address{}) && caller == approved {
		return true, nil
	}
	operator, err := g.registry.IsApprovedForAll(ctx, owner, caller)
	if err != nil {
		return false, err
	}
	if operator {
		return true, nil
	}
	agent, err := g.store.Agent(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return agent != (common.Address{}) && caller == agent, nil
}

func (g *Gate) ready() error {
	if g == nil || g.registry == nil || g.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "authorization gate not initialised")
	}
	return nil
}

func (g *Gate) reject(operation string, err error) error {
	metrics.ObserveGateDecision(operation, string(xerrors.CodeOf(err)))
	return err
}

// emit publishes the notification after the committed write. A publish
// failure does not undo the write: the store, not the bus, is the source
// of truth. The failure is logged and alerted instead.
func (g *Gate) emit(ctx context.Context, event Event) {
	if g.sink == nil {
		return
	}
	if err := g.sink.Publish(ctx, event); err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeEventPublishFailed, err, "publish notification",
			xerrors.WithMetadata("event_id", event.ID),
			xerrors.WithMetadata("kind", string(event.Kind)))
		g.logger.Error("notification publish failed",
			slog.String("event_id", event.ID),
			slog.String("kind", string(event.Kind)),
			slog.String("token_id", event.TokenID.String()),
			slog.Any("error", err),
		)
		if g.alerter != nil && xerrors.ShouldAlert(wrapped) {
			_ = g.alerter.Notify(ctx, alerting.Event{
				Code:     xerrors.CodeEventPublishFailed,
				Message:  wrapped.Message(),
				Severity: wrapped.Severity(),
				TokenID:  event.TokenID.String(),
				Metadata: wrapped.Metadata(),
			})
		}
	}
}

// IsNotFound reports whether an error is the registry's missing-token
// signal.
func IsNotFound(err error) bool {
	return stdErrors.Is(err, registry.ErrTokenNotFound)
}
