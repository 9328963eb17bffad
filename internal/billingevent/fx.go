package billingevent

import (
	"github.com/decksmith/decksmith/internal/billingevent/repository"
	"github.com/decksmith/decksmith/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
