package main

import (
	"context"
	"discuss/internal/api"
	"discuss/internal/config"
	"discuss/internal/feed"
	"discuss/internal/logger"
	"discuss/internal/query"
	"discuss/internal/session"
	"discuss/internal/storage"
	"discuss/internal/transport"
	"discuss/internal/tui"
	"discuss/internal/typing"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// app is everything a run needs, built from the configuration.
type app struct {
	cfg     *config.Config
	logger  *zap.SugaredLogger
	history *storage.BboltStorage
	session *session.Session
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{Development: cfg.Dev, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: lg}

	var history session.History
	if cfg.HistoryDB != "" {
		a.history, err = storage.NewBboltStorage(cfg.HistoryDB)
		if err != nil {
			return nil, err
		}
		history = a.history
	}

	apiClient := api.New(api.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
		Logger:  lg.Named("api"),
	})
	q := query.New(ctx, apiClient, feed.NewStore(), query.Config{
		PageSize: cfg.PageSize,
		Stale:    cfg.CacheStale,
		Logger:   lg.Named("query"),
	})
	contract := typing.Contract{TTL: cfg.TypingTTL, Grace: cfg.TypingGrace}

	a.session = session.New(session.Config{
		UserID:  cfg.UserID,
		Query:   q,
		History: history,
		Typing:  contract,
		Logger:  lg.Named("session"),
	}, func(h transport.Handlers) session.Transport {
		return transport.NewClient(transport.Config{
			Dialer:    &transport.WebsocketDialer{URL: cfg.SocketURL, Token: cfg.Token},
			Typing:    contract,
			Reconnect: cfg.Reconnect,
			Logger:    lg.Named("transport"),
		}, h)
	})
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warnw("Failed to close history", "error", err)
		}
	}
	_ = a.logger.Sync()
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discuss", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a config file (yaml, toml or json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Infow("Starting chat", "api", a.cfg.APIURL, "socket", a.cfg.SocketURL)

	draft, err := tui.Run(ctx, a.session, tui.Options{
		NearBottom: a.cfg.NearBottomLines,
		Draft:      a.session.Draft().Text,
		Logger:     a.logger.Named("tui"),
	})
	if cerr := a.session.Close(draft); cerr != nil {
		a.logger.Warnw("Failed to close connection", "error", cerr)
	}
	a.logger.Infow("Chat closed")
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("Application error: %v", err)
	}
}
