package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Vinmsh25/skillbarter/internal/api"
	"github.com/Vinmsh25/skillbarter/internal/auth"
	"github.com/Vinmsh25/skillbarter/internal/bus"
	"github.com/Vinmsh25/skillbarter/internal/config"
	"github.com/Vinmsh25/skillbarter/internal/database"
	"github.com/Vinmsh25/skillbarter/internal/realtime"
	"github.com/Vinmsh25/skillbarter/internal/settlement"
	"github.com/Vinmsh25/skillbarter/internal/timer"
	pkgdatabase "github.com/Vinmsh25/skillbarter/pkg/database"
)

// Application wires all components together.
// Initialization order: store → bank → settlement → timer engine → bus →
// auth → realtime → API → HTTP.
type Application struct {
	config     *config.Config
	store      *database.Store
	bank       *settlement.Bank
	engine     *timer.Engine
	groupBus   *bus.Bus
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication builds an application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.ConnMaxLifetime = cfg.Database.Timeout
	dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3

	store, err := database.NewStore(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	bankBalance, err := store.BankBalance(context.Background())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load bank balance: %w", err)
	}
	bank := settlement.NewBank(bankBalance)

	settlementEngine := settlement.NewEngine(store, bank)
	engine := timer.NewEngine(store, settlementEngine)

	groupBus := bus.New()

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	gate := auth.NewGate(verifier)

	limiter := realtime.NewRateLimiter(cfg.Chat.EventsPerMinute)
	chatHandler := realtime.NewHandler(gate, engine, store, groupBus, cfg.WebSocket, limiter)

	apiServer := api.NewServer(engine, store, verifier, groupBus)

	root := mux.NewRouter()
	root.HandleFunc("/ws/chat/{session_id}", chatHandler.HandleChat)
	root.PathPrefix("/api/").Handler(apiServer)
	root.Handle("/health", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		bank:       bank,
		engine:     engine,
		groupBus:   groupBus,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is up or startup failed.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting skillbarter on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("skillbarter started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP first, then the store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down skillbarter")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("Shutdown complete")
	return nil
}

// Addr returns the server's listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
