package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/oauth2"

	"github.com/susu3304/warikanbot/internal/config"
	"github.com/susu3304/warikanbot/internal/ledger"
	"github.com/susu3304/warikanbot/internal/logging"
)

// GuildLister returns the guilds visible to an OAuth access token.
type GuildLister func(ctx context.Context, accessToken string) ([]DiscordGuild, error)

// ChannelGuild resolves which guild a channel (ledger session) belongs to.
type ChannelGuild func(channelID string) (string, error)

type API struct {
	router       *mux.Router
	svc          *ledger.Service
	config       *config.Config
	oauthConfig  *oauth2.Config
	jwtSecret    []byte
	listGuilds   GuildLister
	channelGuild ChannelGuild
	log          *slog.Logger
}

func New(cfg *config.Config, svc *ledger.Service, channelGuild ChannelGuild) *API {
	api := &API{
		router:       mux.NewRouter(),
		svc:          svc,
		config:       cfg,
		jwtSecret:    []byte(cfg.JWTSecret),
		channelGuild: channelGuild,
		log:          slog.Default().With("component", logging.ComponentAPI),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}
	api.listGuilds = api.getDiscordGuilds

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/user/guilds", a.handleUserGuilds).Methods("GET")

	session := protected.PathPrefix("/guilds/{guild_id}/sessions/{session_id}").Subrouter()
	session.Use(a.sessionAccessMiddleware)
	session.HandleFunc("", a.handleSession).Methods("GET")
	session.HandleFunc("/settlements", a.handleSettlements).Methods("GET")
	session.HandleFunc("/expenses", a.handleExpenses).Methods("GET")
	session.HandleFunc("/me", a.handleMe).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// When AllowedOrigins is "*", AllowCredentials must stay false.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("API server listening", "addr", "http://"+a.config.WebBind)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
