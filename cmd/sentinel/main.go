package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shieldhq/sentinel/internal/clock"
	"github.com/shieldhq/sentinel/internal/config"
	"github.com/shieldhq/sentinel/internal/logger"
	"github.com/shieldhq/sentinel/internal/migration"
	"github.com/shieldhq/sentinel/internal/server"
	"github.com/shieldhq/sentinel/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
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
