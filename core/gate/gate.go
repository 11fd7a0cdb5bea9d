// Package gate asks an operator to confirm billable actions before they are
// sent to the production provider.
package gate

import (
	"context"
	"fmt"

	"esign-orchestrator/core/environment"
	"esign-orchestrator/core/models"

	"go.uber.org/zap"
)

// Prompt is what an operator is asked to confirm
type Prompt struct {
	RunID       string
	ActionLabel string
	Message     string
	Environment models.EnvironmentConfig
}

// Confirmer blocks until an operator answers a prompt. Anything other
// than an explicit yes must return false.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// Decision is the result of a gate check
type Decision struct {
	Env      models.EnvironmentConfig
	Approved bool
}

// Gate checks the resolved environment before each billable submission.
type Gate struct {
	resolver  *environment.Resolver
	confirmer Confirmer
	logger    *zap.Logger
}

// New creates a gate. A nil confirmer declines every production prompt.
func New(resolver *environment.Resolver, confirmer Confirmer, logger *zap.Logger) *Gate {
	if confirmer == nil {
		confirmer = StaticConfirmer(false)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{resolver: resolver, confirmer: confirmer, logger: logger}
}

// Message builds the production confirmation text for an action.
func Message(actionLabel string) string {
	return fmt.Sprintf("You are about to perform %s in PRODUCTION. This will incur real costs. Do you want to proceed?", actionLabel)
}

// Check resolves the environment and, in production, heals preference
// drift and asks the confirmer. Sandbox checks never block.
func (g *Gate) Check(ctx context.Context, runID, actionLabel string) (Decision, error) {
	env, err := g.resolver.Resolve(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve environment: %w", err)
	}
	if !env.IsProduction() {
		return Decision{Env: env, Approved: true}, nil
	}

	healed, _, err := g.resolver.Heal(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("heal environment: %w", err)
	}
	env = healed

	approved, err := g.confirmer.Confirm(ctx, Prompt{
		RunID:       runID,
		ActionLabel: actionLabel,
		Message:     Message(actionLabel),
		Environment: env,
	})
	if err != nil {
		return Decision{Env: env}, err
	}

	g.logger.Info("gate.decision",
		zap.String("run_id", runID),
		zap.String("action", actionLabel),
		zap.String("base_url", env.BaseURL),
		zap.Bool("approved", approved),
	)
	return Decision{Env: env, Approved: approved}, nil
}

// ConfirmIfProduction reports whether actionLabel may proceed.
func (g *Gate) ConfirmIfProduction(ctx context.Context, actionLabel string) (bool, error) {
	d, err := g.Check(ctx, "", actionLabel)
	if err != nil {
		return false, err
	}
	return d.Approved, nil
}
