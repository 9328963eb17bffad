package generation

import (
	"github.com/decksmith/decksmith/internal/generation/runner"
	"github.com/decksmith/decksmith/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(runner.NewLocal),
	fx.Provide(service.New),
)
