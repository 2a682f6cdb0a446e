package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	coretelegram "github.com/fakto/crmbot/core/telegram"
	"github.com/fakto/crmbot/core/telegram/callbacks"
	"github.com/fakto/crmbot/core/telegram/commands"
	"github.com/fakto/crmbot/core/telegram/helpers"
	"github.com/fakto/crmbot/core/telegram/router"
	tgsender "github.com/fakto/crmbot/core/telegram/sender"
	"github.com/fakto/crmbot/internal/config"
	"github.com/fakto/crmbot/internal/conversation"
	"github.com/fakto/crmbot/internal/flows"
	"github.com/fakto/crmbot/internal/supabase"

	tele "gopkg.in/telebot.v4"
)

const usernamesPerMessage = 50

// App wires the conversation engine, the Supabase gateway and the
// Telegram transport together.
type App struct {
	cfg        *config.Config
	store      supabase.Store
	auth       *supabase.AuthClient
	engine     *conversation.Engine
	sender     *TelegramSender
	dispatcher *tgsender.Dispatcher
	registry   *coretelegram.Registry
}

// New builds a fully wired App from configuration.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot: nil config")
	}

	store := supabase.New(cfg.Supabase)
	auth := supabase.NewAuth(cfg.Supabase)

	// A single worker keeps outbound messages in the order the
	// handlers queued them.
	dispatcher := tgsender.NewDispatcher(tgsender.Options{Workers: 1})
	sender := NewTelegramSender(dispatcher)

	rules := conversation.NewRuleSet()
	flows.Register(rules, flows.Deps{
		Store:         store,
		Auth:          auth,
		DefaultTenant: cfg.Tenant.DefaultID,
		AuthGate:      cfg.AuthGateEnabled(),
	})

	engine := conversation.NewEngine(conversation.Options{
		Rules:       rules,
		Store:       conversation.NewStore(),
		Sender:      sender,
		IdleTimeout: time.Duration(cfg.Session.TimeoutSeconds) * time.Second,
	})

	app := &App{
		cfg:        cfg,
		store:      store,
		auth:       auth,
		engine:     engine,
		sender:     sender,
		dispatcher: dispatcher,
		registry:   coretelegram.NewRegistry(),
	}
	app.registerCommands()
	app.registerCallbacks()
	return app, nil
}

// Engine exposes the conversation engine, mainly for tests.
func (a *App) Engine() *conversation.Engine {
	return a.engine
}

// conversationAdapter feeds Telegram updates into the engine.
type conversationAdapter struct {
	engine *conversation.Engine
}

func (ca *conversationAdapter) Active(chatID int64) bool {
	return ca.engine.Store().Active(chatID)
}

func (ca *conversationAdapter) Handle(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	return ca.engine.Submit(helpers.BuildContext(c), chat.ID, eventFrom(c))
}

func eventFrom(c tele.Context) conversation.Event {
	if c.Callback() != nil {
		return conversation.CallbackEvent(callbacks.CallbackKey(c), callbacks.CallbackPayload(c))
	}
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		return conversation.CommandEvent(text)
	}
	return conversation.TextEvent(text)
}

func (a *App) registerCommands() {
	adapter := &conversationAdapter{engine: a.engine}

	a.registry.RegisterCommand("/start", commands.Command{
		Handler:     adapter.Handle,
		Description: "Abrir el menú principal",
	})
	a.registry.RegisterCommand("/cancel", commands.Command{
		Handler:     adapter.Handle,
		Description: "Cancelar la acción en curso",
	})
	a.registry.RegisterCommand("/resetpassword", commands.Command{
		Handler:     adapter.Handle,
		Description: "Recuperar la contraseña de tu cuenta",
	})
	a.registry.RegisterCommand("/listusernames", commands.Command{
		Handler:     a.handleListUsernames,
		Description: "Listar nombres de usuario registrados",
		AdminOnly:   true,
		Hidden:      true,
	})
}

func (a *App) registerCallbacks() {
	adapter := &conversationAdapter{engine: a.engine}
	for _, key := range flows.CallbackKeys() {
		_ = a.registry.RegisterCallback(key, adapter.Handle)
	}
}

// handleListUsernames answers directly, outside the conversation engine.
// An optional argument filters usernames by prefix.
func (a *App) handleListUsernames(c tele.Context) error {
	ctx := helpers.BuildContext(c)

	query := a.store.Table("users").Select("username")
	if args := c.Args(); len(args) > 0 && args[0] != "" {
		query = query.Like("username", args[0]+"%")
	}
	res, err := query.Execute(ctx)
	if err == nil && res.Error != nil {
		err = res.Error
	}
	if err != nil {
		return helpers.SendText(c, "No se pudieron obtener los usernames. Inténtalo más tarde.")
	}

	var names []string
	for _, row := range res.Rows {
		if name := row.String("username"); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return helpers.SendText(c, "No se encontraron usernames.")
	}

	for start := 0; start < len(names); start += usernamesPerMessage {
		end := start + usernamesPerMessage
		if end > len(names) {
			end = len(names)
		}
		if err := helpers.SendText(c, strings.Join(names[start:end], "\n")); err != nil {
			return err
		}
	}
	return nil
}

// TelegramRunOptions assembles the transport options for RunTelegram.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	adapter := &conversationAdapter{engine: a.engine}
	coreCfg := a.cfg.CoreConfig()

	routes := router.TextRoutes(adapter, a.registry, router.TextOptions{})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminIDs: a.cfg.Admin.IDs,
		OnAdminReject: func(c tele.Context) error {
			return helpers.SendText(c, "Comando exclusivo para administradores.")
		},
	})...)

	return coretelegram.RunOptions{
		Config:      coreCfg,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(coreCfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.sender.Bind(rt.Bot)
			coretelegram.InitBotCommands(rt.Bot, rt.Registry)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.engine.Close()
			return nil
		},
	}, nil
}
