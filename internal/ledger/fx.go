package ledger

import (
	"github.com/decksmith/decksmith/internal/ledger/repository"
	"github.com/decksmith/decksmith/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
