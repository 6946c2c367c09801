package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/medrate/internal/addon"
	"github.com/smallbiznis/medrate/internal/application"
	"github.com/smallbiznis/medrate/internal/clock"
	"github.com/smallbiznis/medrate/internal/config"
	"github.com/smallbiznis/medrate/internal/discount"
	"github.com/smallbiznis/medrate/internal/loading"
	"github.com/smallbiznis/medrate/internal/lock"
	"github.com/smallbiznis/medrate/internal/migration"
	"github.com/smallbiznis/medrate/internal/observability"
	"github.com/smallbiznis/medrate/internal/premium"
	"github.com/smallbiznis/medrate/internal/ratecard"
	"github.com/smallbiznis/medrate/internal/scheduler"
	"github.com/smallbiznis/medrate/internal/server"
	"github.com/smallbiznis/medrate/internal/versioning"
	"github.com/smallbiznis/medrate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()

	options := []fx.Option{
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Rating and underwriting
		versioning.Module,
		ratecard.Module,
		addon.Module,
		loading.Module,
		discount.Module,
		premium.Module,
		application.Module,

		server.Module,
	}
	if cfg.SchedulerEnabled {
		options = append(options, scheduler.Module)
	}

	fx.New(options...).Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
