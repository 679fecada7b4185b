package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/config"
	"github.com/sagarc03/strongbox/database"
	"github.com/sagarc03/strongbox/filesystem"
	"github.com/sagarc03/strongbox/identity"
	"github.com/sagarc03/strongbox/keybackend"
)

// app bundles the components every command that touches objects needs.
type app struct {
	db      database.Database
	files   *filesystem.Store
	service *strongbox.Service
}

func (a *app) Close() {
	if a.files != nil {
		if err := a.files.Close(); err != nil {
			slog.Warn("close storage root", "err", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("close database", "err", err)
		}
	}
}

// openDatabase connects and either migrates or validates the schema.
func openDatabase(ctx context.Context, cfg *config.Config, migrate bool) (database.Database, error) {
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if migrate {
		err = db.Migrate(ctx)
	} else {
		err = db.Validate(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare database schema: %w", err)
	}

	slog.Info("connected to database", "type", cfg.Database.Type)
	return db, nil
}

// openApp wires the metadata store, filesystem, signer and service.
func openApp(ctx context.Context, cfg *config.Config, migrate bool) (*app, error) {
	a := &app{}

	db, err := openDatabase(ctx, cfg, migrate)
	if err != nil {
		return nil, err
	}
	a.db = db

	resolver, err := filesystem.NewResolver(cfg.Storage.Root)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	files, err := filesystem.NewStore(resolver)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.files = files

	secrets, minting, err := keybackend.SigningPair(cfg.Keys)
	if err != nil {
		a.Close()
		return nil, err
	}

	signer, err := strongbox.NewSigner(minting, secrets)
	if err != nil {
		a.Close()
		return nil, err
	}
	slog.Info("loaded access keys", "count", secrets.Len(), "signing", minting.AccessKey)

	service, err := strongbox.NewService(db.Store(), files, resolver, identity.NewDerived(identity.DefaultNamespace), signer, cfg.ServiceConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}
	a.service = service

	return a, nil
}

var errCancelled = errors.New("cancelled")
