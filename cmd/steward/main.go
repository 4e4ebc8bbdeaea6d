package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/stewardhq/steward/internal/clock"
	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/migration"
	"github.com/stewardhq/steward/internal/observability"
	"github.com/stewardhq/steward/internal/seed"
	"github.com/stewardhq/steward/internal/server"
	"github.com/stewardhq/steward/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
		seed.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeNumber := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			nodeNumber = parsed
		}
	}
	return snowflake.NewNode(nodeNumber)
}
