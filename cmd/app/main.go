package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dkotenko/blogger-back/internal/config"
	"github.com/dkotenko/blogger-back/internal/db"
	"github.com/dkotenko/blogger-back/internal/markdown"
	"github.com/dkotenko/blogger-back/internal/service"
	"github.com/dkotenko/blogger-back/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			newLogger,
			config.NewConfig,
			db.NewGormClient,
			markdown.NewRenderer,
			service.NewAuth,
			service.NewBlog,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(server *transport.HTTPServer) {}),
	)

	app.Run()
}

func newLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
