// Command harbord runs the Harbor chat server: the HTTP API plus the
// real-time WebSocket fan-out core, over a single SQLite file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/harborchat/harbor/config"
	"github.com/harborchat/harbor/src/api"
	"github.com/harborchat/harbor/src/auth"
	"github.com/harborchat/harbor/src/hub"
	"github.com/harborchat/harbor/src/presence"
	"github.com/harborchat/harbor/src/session"
	"github.com/harborchat/harbor/src/store/sqlite"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	tokens := auth.New([]byte(cfg.JWTSecret), nil)
	h := hub.New(logger)
	tracker := initPresence(ctx, cfg, logger)
	wirePresence(ctx, h, tracker, logger)

	sess := session.New(h, st, st, logger)
	surface := api.New(st, tokens, h, sess, tracker, logger)

	app := fiber.New()
	surface.RegisterRoutes(app)

	appHandler := app.Handler()
	wsHandler := surface.FastHTTPHandler()
	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			appHandler(ctx)
		},
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("server listening")
		errCh <- server.ListenAndServe(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		return server.Shutdown()
	}
}

// initPresence connects the Redis presence store when configured. The server
// runs without presence tracking if Redis is absent or unreachable.
func initPresence(ctx context.Context, cfg config.Config, logger zerolog.Logger) presence.Tracker {
	redisCfg, enabled := cfg.Presence()
	if !enabled {
		return presence.Nop{}
	}
	tracker := presence.NewRedisTracker(redisCfg, logger)
	if err := tracker.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("presence store unavailable, tracking disabled")
		return presence.Nop{}
	}
	return tracker
}

// wirePresence drives the presence store from hub lifecycle callbacks.
func wirePresence(ctx context.Context, h *hub.Hub, tracker presence.Tracker, logger zerolog.Logger) {
	h.OnConnection(func(c *hub.Client) {
		if !c.Identity.Authenticated {
			return
		}
		if err := tracker.MarkOnline(ctx, c.Identity.UserID); err != nil {
			logger.Warn().Err(err).Int64("user_id", c.Identity.UserID).Msg("mark online failed")
		}
	})
	h.OnDisconnection(func(c *hub.Client) {
		if !c.Identity.Authenticated {
			return
		}
		// A superseding connection may still be live for this user.
		if _, ok := h.Resolve(c.Identity); ok {
			return
		}
		if err := tracker.MarkOffline(ctx, c.Identity.UserID); err != nil {
			logger.Warn().Err(err).Int64("user_id", c.Identity.UserID).Msg("mark offline failed")
		}
	})
}
