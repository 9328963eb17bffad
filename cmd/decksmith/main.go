package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/clock"
	"github.com/decksmith/decksmith/internal/config"
	"github.com/decksmith/decksmith/internal/migration"
	"github.com/decksmith/decksmith/internal/observability"
	"github.com/decksmith/decksmith/internal/scheduler"
	"github.com/decksmith/decksmith/internal/server"
	"github.com/decksmith/decksmith/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Functional domains
		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
