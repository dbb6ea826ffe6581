package state

import (
	"context"

	"paperpost/internal/components"
	"paperpost/internal/config"
	"paperpost/internal/core"
)

// State is everything built from one configuration.
type State struct {
	Config   *config.Config
	Registry *components.Registry
	Pipeline *core.Pipeline
	Bot      *core.Bot
}

func NewState(cfg *config.Config, registry *components.Registry, pipeline *core.Pipeline, bot *core.Bot) *State {
	return &State{
		Config:   cfg,
		Registry: registry,
		Pipeline: pipeline,
		Bot:      bot,
	}
}

// Close releases every initialized component.
func (s *State) Close(ctx context.Context) error {
	return s.Registry.CloseAll(ctx)
}
