package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dentaldesk/internal/billing"
	"github.com/smallbiznis/dentaldesk/internal/clinic"
	"github.com/smallbiznis/dentaldesk/internal/clock"
	"github.com/smallbiznis/dentaldesk/internal/config"
	"github.com/smallbiznis/dentaldesk/internal/observability"
	"github.com/smallbiznis/dentaldesk/internal/payment"
	"github.com/smallbiznis/dentaldesk/internal/server"
	"github.com/smallbiznis/dentaldesk/internal/subscription"
	"github.com/smallbiznis/dentaldesk/pkg/db"
	"go.uber.org/fx"
)

// Webhook-only deployment. Schema changes are applied by cmd/dentaldesk.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		clinic.Module,
		subscription.Module,
		payment.Module,
		billing.WebhookModule,

		server.WebhookModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
