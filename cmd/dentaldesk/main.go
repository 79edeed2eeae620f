package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dentaldesk/internal/billing"
	"github.com/smallbiznis/dentaldesk/internal/clinic"
	"github.com/smallbiznis/dentaldesk/internal/clock"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/smallbiznis/dentaldesk/internal/migration"
	"github.com/smallbiznis/dentaldesk/internal/observability"
	"github.com/smallbiznis/dentaldesk/internal/payment"
	"github.com/smallbiznis/dentaldesk/internal/ratelimit"
	"github.com/smallbiznis/dentaldesk/internal/server"
	"github.com/smallbiznis/dentaldesk/internal/subscription"
	"github.com/smallbiznis/dentaldesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		clinic.Module,
		subscription.Module,
		payment.Module,
		ratelimit.Module,
		billing.Module,

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
