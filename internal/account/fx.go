package account

import (
	"github.com/decksmith/decksmith/internal/account/repository"
	"github.com/decksmith/decksmith/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
