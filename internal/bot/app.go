// Package bot wires the study-materials catalog, the download gating
// engine, and the trackers into a Telegram bot.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/quicknotes/studybot/core/bootstrap"
	"github.com/quicknotes/studybot/core/cmd"
	coreconfig "github.com/quicknotes/studybot/core/config"
	coretelegram "github.com/quicknotes/studybot/core/telegram"
	"github.com/quicknotes/studybot/core/telegram/middleware"
	"github.com/quicknotes/studybot/core/telegram/router"
	tgstate "github.com/quicknotes/studybot/core/telegram/state"
	"github.com/quicknotes/studybot/core/telegram/ui"
	"github.com/quicknotes/studybot/internal/access"
	"github.com/quicknotes/studybot/internal/catalog"
	"github.com/quicknotes/studybot/internal/keepalive"
	"github.com/quicknotes/studybot/internal/storage"
	"github.com/quicknotes/studybot/internal/tracker"

	tele "gopkg.in/telebot.v4"
)

// Conversation states used by the upload and search flows.
const (
	stateSearchQuery   tgstate.State = "search_query"
	stateUploadDetails tgstate.State = "upload_details"
	stateUploadFile    tgstate.State = "upload_file"
)

// Temp-data keys for in-flight conversations.
const (
	tempUploadDetails = "upload_details"
)

// App carries every service the handlers need.
type App struct {
	cfg     *coreconfig.Config
	db      *sqlx.DB
	store   *storage.Syncer
	engine  *access.Engine
	catalog *catalog.Catalog
	tracker *tracker.Tracker
	keeper  *keepalive.Keeper
	fsm     tgstate.Manager
	roles   middleware.RoleOptions

	bgCancel context.CancelFunc
}

// appConfig adapts the core config to the cmd.ConfigCarrier contract.
type appConfig struct {
	core *coreconfig.Config
}

func (c *appConfig) CoreConfig() *coreconfig.Config { return c.core }

// LoadConfig reads and validates the bot configuration.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &appConfig{core: cfg}, nil
}

// Bootstrap builds the full application from loaded configuration.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:   cfg,
		db:    infra.DB,
		store: infra.Store,
		fsm:   tgstate.NewMemoryManager(),
		roles: middleware.RoleOptions{
			AdminIDs: cfg.Roles.AdminIDs,
			TeamIDs:  cfg.Roles.TeamIDs,
		},
	}

	app.engine = access.NewEngine(cfg.Access, access.WithPersist(func(data []byte) {
		app.store.Put(access.DocumentName, data)
	}))
	app.catalog = catalog.New(catalog.WithPersist(func(data []byte) {
		app.store.Put(catalog.DocumentName, data)
	}))
	app.tracker = tracker.New(
		tracker.WithUserPersist(func(data []byte) {
			app.store.Put(tracker.UserStatsDocument, data)
		}),
		tracker.WithAdPersist(func(data []byte) {
			app.store.Put(tracker.AdStatsDocument, data)
		}),
	)
	if cfg.Keepalive.Enabled {
		app.keeper = keepalive.New(cfg.Keepalive)
	}

	app.restoreDocuments()
	app.registerFSMHandlers()

	return app, nil
}

// restoreDocuments loads persisted state from the document store.
// Missing documents mean a fresh deployment and are not errors.
func (a *App) restoreDocuments() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	load := func(name string, restore func([]byte)) {
		data, err := a.store.Load(ctx, name)
		if err != nil {
			return
		}
		restore(data)
	}
	load(catalog.DocumentName, a.catalog.Restore)
	load(access.DocumentName, a.engine.RestoreSnapshot)
	load(tracker.UserStatsDocument, a.tracker.RestoreUsers)
	load(tracker.AdStatsDocument, a.tracker.RestoreAds)
}

// TelegramRunOptions assembles the registry, middleware chain, and routes.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a.cfg == nil {
		return coretelegram.RunOptions{}, fmt.Errorf("bot: nil config")
	}

	var fallbacks ui.FallbackProvider = a

	reg := coretelegram.NewRegistry()
	a.registerCommands(reg)
	a.registerCallbacks(reg)
	reg.SetTextFallback(fallbacks.UnknownText())
	reg.SetCallbackNotFound(fallbacks.UnknownCallback())

	mws := coretelegram.DefaultMiddlewares(a.cfg, nil)
	mws = append(mws, coretelegram.Middleware{Name: "activity", Use: a.activityMiddleware})

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		Roles:    a.roles,
		OnReject: a.handleAccessDenied,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound: fallbacks.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(a.fsm, reg, router.TextOptions{
		UnknownText:     fallbacks.UnknownText(),
		UnknownDocument: fallbacks.UnknownDocument(),
	})...)

	return coretelegram.RunOptions{
		Config:   a.cfg,
		Registry: reg,
		Routes:   routes,

		Middlewares: mws,

		OnStart: a.onStart,
		OnStop:  a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, _ coretelegram.Runtime) error {
	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancel = cancel

	sweep := time.Duration(a.cfg.Access.SweepIntervalSeconds) * time.Second
	go a.engine.RunSweeper(bgCtx, sweep)
	if a.keeper != nil {
		go a.keeper.Run(bgCtx)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.store.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
	return nil
}

// activityMiddleware records every update for the user tracker and
// keeps the idle self-pinger informed.
func (a *App) activityMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if a.keeper != nil {
			a.keeper.Touch()
		}
		if sender := c.Sender(); sender != nil {
			a.tracker.TrackUser(sender.ID, sender.Username, sender.FirstName, updateAction(c))
		}
		return next(c)
	}
}

func updateAction(c tele.Context) string {
	if c.Callback() != nil {
		return "callback"
	}
	if msg := c.Message(); msg != nil {
		if msg.Document != nil {
			return "document"
		}
		if len(msg.Text) > 1 && msg.Text[0] == '/' {
			return "command"
		}
	}
	return "message"
}
