// Package runner provides the built-in generation backend. It produces
// placeholder outputs so the billing path can run without an upstream
// model; deployments swap in a real backend through the Runner interface.
package runner

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/generation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Local struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewLocal(p Params) domain.Runner {
	return &Local{
		log:   p.Log.Named("generation.runner"),
		genID: p.GenID,
	}
}

func (l *Local) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RunResult{}, err
	}

	outputID := l.genID.Generate().String()
	l.log.Debug("operation executed",
		zap.String("output_id", outputID),
		zap.String("category", req.Category),
		zap.Int("card_count", req.CardCount),
	)

	return domain.RunResult{
		OutputID: outputID,
		Cards:    req.CardCount,
		Metadata: map[string]any{"backend": "local"},
	}, nil
}
