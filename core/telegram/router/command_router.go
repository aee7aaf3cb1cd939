package router

import (
	"log/slog"

	"github.com/quicknotes/studybot/core/logger"
	tg "github.com/quicknotes/studybot/core/telegram"
	"github.com/quicknotes/studybot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	Roles    middleware.RoleOptions
	OnReject tele.HandlerFunc
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	roles := opts.Roles
	if roles.OnReject == nil {
		roles.OnReject = opts.OnReject
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		h := def.Handler
		h = middleware.RecoverMiddleware(h)
		h = middleware.LoggerMiddleware(h)
		switch {
		case def.AdminOnly:
			h = middleware.AdminOnlyMiddleware(roles)(h)
		case def.TeamOnly:
			h = middleware.TeamOnlyMiddleware(roles)(h)
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  h,
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
