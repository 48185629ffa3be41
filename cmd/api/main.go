package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/aiwf/engine/cmd/api/container"
	"github.com/aiwf/engine/cmd/api/routes"
	"github.com/aiwf/engine/common/bootstrap"
	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/repository"
	"github.com/aiwf/engine/common/server"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "api",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.InitSchema(ctx, database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	serviceContainer := container.New(components)

	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())

	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(200, map[string]string{"status": "ok", "service": "api"})
	})

	routes.Register(e, serviceContainer)

	srv := server.New("api", components.Config.Service.Port, e, components.Logger)
	if err := srv.Run(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
