package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/auth"
	config "github.com/NordCoder/Flatwatch/internal/config/admin-api"
	pg "github.com/NordCoder/Flatwatch/internal/repository/postgres"
	"github.com/NordCoder/Flatwatch/internal/services/admin"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, db *pg.DB) *http.Server {
	uc := &admin.Usecase{
		Users:     pg.NewUserRepo(db),
		Filters:   pg.NewFilterRepo(db),
		Favorites: pg.NewFavoriteRepo(db),
		Listings:  pg.NewListingRepo(db),
		Jobs:      pg.NewJobQueue(db, pg.QueueConfig{}),
	}

	var a *admin.Auth
	if cfg.Auth.Enable {
		a = &admin.Auth{
			PasswordHash: cfg.Auth.OperatorPasswordHash,
			Issuer:       auth.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL, nil),
		}
	} else {
		logger.Warn("admin api runs without authentication")
	}

	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           admin.NewRouter(admin.NewHandler(uc, a, logger)),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
	return srv.ListenAndServe()
}
