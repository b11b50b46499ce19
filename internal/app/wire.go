//go:build wireinject

package app

import (
	"log/slog"
	"net/http"

	"github.com/clipworks/reframe/internal/conf"
	"github.com/clipworks/reframe/internal/data"
	"github.com/clipworks/reframe/internal/web/api"
	"github.com/google/wire"
)

func wireApp(bc *conf.Bootstrap, log *slog.Logger) (http.Handler, func(), error) {
	panic(wire.Build(data.ProviderSet, api.ProviderVersionSet, api.ProviderSet))
}
