package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/clock"
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/internal/metricspush"
	"github.com/smallbiznis/salonbook/internal/migration"
	"github.com/smallbiznis/salonbook/internal/observability"
	"github.com/smallbiznis/salonbook/internal/server"
	"github.com/smallbiznis/salonbook/internal/worker"
	"github.com/smallbiznis/salonbook/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// server.Module brings the settlement domains with it.
		server.Module,
		metricspush.Module,
		worker.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
