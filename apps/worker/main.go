package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/salonbook/internal/audit"
	"github.com/smallbiznis/salonbook/internal/cashregister"
	"github.com/smallbiznis/salonbook/internal/clock"
	"github.com/smallbiznis/salonbook/internal/commission"
	"github.com/smallbiznis/salonbook/internal/commissionrule"
	"github.com/smallbiznis/salonbook/internal/config"
	"github.com/smallbiznis/salonbook/internal/events"
	"github.com/smallbiznis/salonbook/internal/invoice"
	"github.com/smallbiznis/salonbook/internal/metricspush"
	"github.com/smallbiznis/salonbook/internal/observability"
	"github.com/smallbiznis/salonbook/internal/reference"
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

		// Domain services the jobs depend on. The commission module
		// subscribes its invoice.paid handler to the outbox.
		events.Module,
		audit.Module,
		reference.Module,
		commissionrule.Module,
		cashregister.Module,
		invoice.Module,
		commission.Module,

		// No server module.
		metricspush.Module,
		worker.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
