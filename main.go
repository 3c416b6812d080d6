package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// allowCORS lets browser clients on origin call the JSON endpoints.
func allowCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func handleRooms(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.Rooms().Snapshots())
	}
}

// newMux wires every endpoint. logger may be nil.
func newMux(cfg AppConfig, hub *Hub, engine *Engine, accounts *AccountService, logger *AppLogger) http.Handler {
	mux := http.NewServeMux()

	wrapHandler := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		h = disableCaching(h)
		h = allowCORS(cfg.AllowedOrigin, h)
		if logger != nil && logger.logRequests {
			mux.Handle(pattern, &LoggingHandler{Handler: h, Logger: logger})
		} else {
			mux.Handle(pattern, h)
		}
	}

	wrapHandler("/healthz", handleHealth)
	wrapHandler("/signup", accounts.handleSignup)
	wrapHandler("/login", accounts.handleLogin)
	wrapHandler("/checkToken", accounts.handleCheckToken)
	wrapHandler(cfg.WSPath, hub.handleWebSocket)
	if cfg.Dev {
		wrapHandler("/rooms", handleRooms(engine))
	}
	return mux
}

func randomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// run serves until ctx is cancelled, then shuts the server down.
func run(ctx context.Context, cfg AppConfig) error {
	store, err := openAccountStore(cfg.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.TokenSecret == "" {
		log.Println("WARNING: no token secret configured, tokens will not survive a restart")
		cfg.TokenSecret = randomSecret()
	}
	accounts := &AccountService{store: store, tokens: NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)}

	hub := newHub(cfg.toHubOptions())
	engine := NewEngine(hub, newStoryteller(cfg))
	hub.onEvent = engine.Dispatch
	if cfg.Dev {
		devRooms = engine.Rooms()
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(cfg, hub, engine, accounts, appLogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	hub.start()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on %s (ws %s)", cfg.Addr, cfg.WSPath)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		hub.stop()
		return err
	})
	return g.Wait()
}

func main() {
	fv := registerFlags(flag.CommandLine)
	flag.Parse()

	cfg := loadConfig(*fv.configPath, *fv.dotenvPath)
	fv.applyTo(&cfg)
	devMode = cfg.Dev

	// Set up logging to both stdout and file
	logFile, err := os.OpenFile("moonlit.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	logger, err := NewAppLogger(cfg.toLogConfig())
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	appLogger = logger
	defer CloseAppLogger()

	if appLogger.IsEnabled() {
		log.Println("Extended logging enabled")
	}
	if cfg.Dev {
		redacted := cfg
		redacted.TokenSecret, redacted.StorytellerAPIKey, redacted.GroqAPIKey = "", "", ""
		data, _ := json.Marshal(redacted)
		log.Printf("Config: %s", data)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logError("main: run", err)
		os.Exit(1)
	}
}
