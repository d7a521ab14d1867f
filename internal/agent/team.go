package agent

import (
	"fmt"

	"github.com/fyrsmithlabs/planify/internal/config"
	"github.com/fyrsmithlabs/planify/internal/logging"
)

// Team holds the three agents of a planning cycle.
type Team struct {
	Architect  Client
	Critic     Client
	Integrator Client
}

// NewTeam builds the agents selected by cfg. Backends shared between roles
// share one rate limiter.
func NewTeam(cfg *config.Config, logger *logging.Logger, opts ...BackendOption) (*Team, error) {
	backends := make(map[string]Backend)
	backendFor := func(name string) (Backend, error) {
		if b, ok := backends[name]; ok {
			return b, nil
		}
		bc, ok := cfg.BackendFor(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}
		b, err := NewBackend(name, bc, opts...)
		if err != nil {
			return nil, err
		}
		backends[name] = b
		return b, nil
	}

	retry := RetryPolicyFrom(cfg.RetryPolicy)
	optionsFor := func(model string, timeout config.Duration, backend string) Options {
		bc, _ := cfg.BackendFor(backend)
		return Options{
			Model:       model,
			Timeout:     timeout.Duration(),
			Retry:       retry,
			Temperature: bc.Temperature,
			MaxTokens:   bc.MaxTokens,
			Logger:      logger,
		}
	}

	architectBackend, err := backendFor(cfg.ArchitectBackend)
	if err != nil {
		return nil, fmt.Errorf("architect: %w", err)
	}
	criticBackend, err := backendFor(cfg.CriticBackend)
	if err != nil {
		return nil, fmt.Errorf("critic: %w", err)
	}

	team := &Team{
		Architect: NewArchitect(architectBackend,
			optionsFor(cfg.ModelNames.Architect, cfg.Timeouts.Architect, cfg.ArchitectBackend)),
		Critic: NewCritic(criticBackend,
			optionsFor(cfg.ModelNames.Critic, cfg.Timeouts.Critic, cfg.CriticBackend)),
	}

	if cfg.IntegratorBackend == config.BackendMerge {
		team.Integrator = NewMergeIntegrator()
		return team, nil
	}
	integratorBackend, err := backendFor(cfg.IntegratorBackend)
	if err != nil {
		return nil, fmt.Errorf("integrator: %w", err)
	}
	team.Integrator = NewIntegrator(integratorBackend,
		optionsFor(cfg.ModelNames.Integrator, cfg.Timeouts.Integrator, cfg.IntegratorBackend))
	return team, nil
}
