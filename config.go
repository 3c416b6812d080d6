package main

import (
	"encoding/json"
	"flag"
	"log"
	"net"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig holds all server configuration.
// Priority (lowest → highest): defaults < .env file < env vars < JSON config file < CLI flags.
type AppConfig struct {
	// Server
	Addr          string `json:"addr" env:"ADDR"`                     // HTTP listen address
	DB            string `json:"db" env:"DB"`                         // sqlite path for the account store
	Dev           bool   `json:"dev" env:"DEV"`                       // dev mode: /rooms endpoint, room dumps on errors
	WSPath        string `json:"ws_path" env:"WS_PATH"`               // WebSocket endpoint
	AllowedOrigin string `json:"allowed_origin" env:"ALLOWED_ORIGIN"` // "" or "*" allows any origin

	// Accounts
	TokenSecret string        `json:"token_secret" env:"ACCESS_TOKEN_SECRET"`
	TokenTTL    time.Duration `json:"token_ttl" env:"TOKEN_TTL"`

	// Flow control
	EventRate  float64 `json:"event_rate" env:"EVENT_RATE"`   // inbound events per second per connection, 0 disables
	EventBurst int     `json:"event_burst" env:"EVENT_BURST"` // limiter bucket size
	SendBuffer int     `json:"send_buffer" env:"SEND_BUFFER"` // outbound frames queued per connection

	// Logging (extended diagnostics, off by default)
	LogOutputDir string `json:"log_output_dir" env:"LOG_OUTPUT_DIR"`
	LogRequests  bool   `json:"log_requests" env:"LOG_REQUESTS"`
	LogWS        bool   `json:"log_ws" env:"LOG_WS"`
	LogRooms     bool   `json:"log_rooms" env:"LOG_ROOMS"`
	LogDebug     bool   `json:"log_debug" env:"LOG_DEBUG"`

	// AI Storyteller
	StorytellerProvider    string `json:"storyteller_provider" env:"STORYTELLER_PROVIDER"`       // ollama | openai | claude | gemini | groq | openai-compatible
	StorytellerModel       string `json:"storyteller_model" env:"STORYTELLER_MODEL"`             // model name
	StorytellerOllamaURL   string `json:"storyteller_ollama_url" env:"STORYTELLER_OLLAMA_URL"`   // Ollama server URL
	StorytellerURL         string `json:"storyteller_url" env:"STORYTELLER_URL"`                 // base URL for openai-compatible
	StorytellerAPIKey      string `json:"storyteller_api_key" env:"STORYTELLER_API_KEY"`         // API key for openai-compatible
	StorytellerTemperature string `json:"storyteller_temperature" env:"STORYTELLER_TEMPERATURE"` // float 0-1 as string
	StorytellerThinking    string `json:"storyteller_thinking" env:"STORYTELLER_THINKING"`       // none | low | medium | high | auto
	GroqAPIKey             string `json:"groq_api_key" env:"GROQ_API_KEY"`                       // API key for groq provider
}

func (cfg AppConfig) toLogConfig() LogConfig {
	return LogConfig{
		OutputDir:   cfg.LogOutputDir,
		LogRequests: cfg.LogRequests,
		LogWS:       cfg.LogWS,
		LogRooms:    cfg.LogRooms,
		Debug:       cfg.LogDebug,
		WSPath:      cfg.WSPath,
	}
}

func defaultConfig() AppConfig {
	return AppConfig{
		Addr:                 ":8080",
		DB:                   "moonlit.db",
		WSPath:               "/ws/",
		TokenTTL:             24 * time.Hour,
		EventRate:            20,
		EventBurst:           40,
		SendBuffer:           64,
		StorytellerOllamaURL: "http://localhost:11434",
	}
}

// loadConfig builds a config by layering: defaults → .env → env vars → JSON config file.
// CLI flag overrides are applied separately by flagValues.applyTo after parsing.
func loadConfig(configPath, dotenvPath string) AppConfig {
	cfg := defaultConfig()

	// Layer 1: .env never overrides variables already set in the environment
	if err := godotenv.Load(dotenvPath); err == nil {
		log.Printf("Config: loaded %s", dotenvPath)
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", dotenvPath, err)
	}

	// Layer 2: env vars, unset ones keep their defaults
	if err := env.Parse(&cfg); err != nil {
		log.Printf("Config: invalid environment: %v", err)
	}

	// Layer 3: JSON config file: only fields present in the file override env vars
	if data, err := os.ReadFile(configPath); err == nil {
		var overlay map[string]json.RawMessage
		if err := json.Unmarshal(data, &overlay); err != nil {
			log.Printf("Config: failed to parse %s: %v", configPath, err)
		} else {
			applyJSONOverlay(&cfg, overlay)
			log.Printf("Config: loaded from %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("Config: failed to read %s: %v", configPath, err)
	}

	// PORT is what hosting platforms set; it wins over the port in addr
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = withPort(cfg.Addr, port)
	}

	return cfg
}

func withPort(addr, port string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, port)
}

// applyJSONOverlay only sets fields that are explicitly present in the JSON map.
func applyJSONOverlay(cfg *AppConfig, m map[string]json.RawMessage) {
	set := func(key string, dst any) {
		if v, ok := m[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				log.Printf("Config: ignoring %s: %v", key, err)
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		var s string
		set(key, &s)
		if s == "" {
			return
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			log.Printf("Config: ignoring %s: %v", key, err)
			return
		}
		*dst = d
	}
	set("addr", &cfg.Addr)
	set("db", &cfg.DB)
	set("dev", &cfg.Dev)
	set("ws_path", &cfg.WSPath)
	set("allowed_origin", &cfg.AllowedOrigin)
	set("token_secret", &cfg.TokenSecret)
	duration("token_ttl", &cfg.TokenTTL)
	set("event_rate", &cfg.EventRate)
	set("event_burst", &cfg.EventBurst)
	set("send_buffer", &cfg.SendBuffer)
	set("log_output_dir", &cfg.LogOutputDir)
	set("log_requests", &cfg.LogRequests)
	set("log_ws", &cfg.LogWS)
	set("log_rooms", &cfg.LogRooms)
	set("log_debug", &cfg.LogDebug)
	set("storyteller_provider", &cfg.StorytellerProvider)
	set("storyteller_model", &cfg.StorytellerModel)
	set("storyteller_ollama_url", &cfg.StorytellerOllamaURL)
	set("storyteller_url", &cfg.StorytellerURL)
	set("storyteller_api_key", &cfg.StorytellerAPIKey)
	set("storyteller_temperature", &cfg.StorytellerTemperature)
	set("storyteller_thinking", &cfg.StorytellerThinking)
	set("groq_api_key", &cfg.GroqAPIKey)
}

// flagValues holds pointers to all registered CLI flags.
type flagValues struct {
	fs                     *flag.FlagSet
	configPath             *string
	dotenvPath             *string
	addr                   *string
	db                     *string
	dev                    *bool
	wsPath                 *string
	allowedOrigin          *string
	tokenSecret            *string
	tokenTTL               *time.Duration
	eventRate              *float64
	eventBurst             *int
	sendBuffer             *int
	logOutputDir           *string
	logRequests            *bool
	logWS                  *bool
	logRooms               *bool
	logDebug               *bool
	storytellerProvider    *string
	storytellerModel       *string
	storytellerOllamaURL   *string
	storytellerURL         *string
	storytellerAPIKey      *string
	storytellerTemperature *string
	storytellerThinking    *string
	groqAPIKey             *string
}

// registerFlags registers all CLI flags on fs and returns pointers to their values.
// Call fs.Parse after this, then applyTo to layer them over the loaded config.
func registerFlags(fs *flag.FlagSet) flagValues {
	return flagValues{
		fs:                     fs,
		configPath:             fs.String("config", "config.json", "path to JSON config file"),
		dotenvPath:             fs.String("env-file", ".env", "path to .env file"),
		addr:                   fs.String("addr", "", "HTTP listen address (e.g. :8080)"),
		db:                     fs.String("db", "", "sqlite path for the account store"),
		dev:                    fs.Bool("dev", false, "enable development mode (/rooms endpoint, room dumps on error)"),
		wsPath:                 fs.String("ws-path", "", "WebSocket endpoint path"),
		allowedOrigin:          fs.String("allowed-origin", "", "allowed browser origin (empty or * for any)"),
		tokenSecret:            fs.String("token-secret", "", "HMAC secret for access tokens"),
		tokenTTL:               fs.Duration("token-ttl", 0, "access token lifetime"),
		eventRate:              fs.Float64("event-rate", 0, "inbound events per second per connection (0 disables)"),
		eventBurst:             fs.Int("event-burst", 0, "inbound event burst per connection"),
		sendBuffer:             fs.Int("send-buffer", 0, "outbound frames queued per connection"),
		logOutputDir:           fs.String("log-output-dir", "", "directory for extended log files"),
		logRequests:            fs.Bool("log-requests", false, "log HTTP requests and responses"),
		logWS:                  fs.Bool("log-ws", false, "log WebSocket messages"),
		logRooms:               fs.Bool("log-rooms", false, "log room state after every operation"),
		logDebug:               fs.Bool("log-debug", false, "enable debug logging"),
		storytellerProvider:    fs.String("storyteller-provider", "", "AI storyteller provider (ollama|openai|claude|gemini|groq|openai-compatible)"),
		storytellerModel:       fs.String("storyteller-model", "", "AI storyteller model name"),
		storytellerOllamaURL:   fs.String("storyteller-ollama-url", "", "Ollama server URL"),
		storytellerURL:         fs.String("storyteller-url", "", "base URL for openai-compatible provider"),
		storytellerAPIKey:      fs.String("storyteller-api-key", "", "API key for storyteller provider"),
		storytellerTemperature: fs.String("storyteller-temperature", "", "sampling temperature 0-1"),
		storytellerThinking:    fs.String("storyteller-thinking", "", "thinking mode: none|low|medium|high|auto"),
		groqAPIKey:             fs.String("groq-api-key", "", "Groq API key"),
	}
}

// applyTo overlays any CLI flags that were explicitly set onto cfg.
// Flags that were not passed on the command line are ignored (env/JSON values win).
func (fv flagValues) applyTo(cfg *AppConfig) {
	fv.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *fv.addr
		case "db":
			cfg.DB = *fv.db
		case "dev":
			cfg.Dev = *fv.dev
		case "ws-path":
			cfg.WSPath = *fv.wsPath
		case "allowed-origin":
			cfg.AllowedOrigin = *fv.allowedOrigin
		case "token-secret":
			cfg.TokenSecret = *fv.tokenSecret
		case "token-ttl":
			cfg.TokenTTL = *fv.tokenTTL
		case "event-rate":
			cfg.EventRate = *fv.eventRate
		case "event-burst":
			cfg.EventBurst = *fv.eventBurst
		case "send-buffer":
			cfg.SendBuffer = *fv.sendBuffer
		case "log-output-dir":
			cfg.LogOutputDir = *fv.logOutputDir
		case "log-requests":
			cfg.LogRequests = *fv.logRequests
		case "log-ws":
			cfg.LogWS = *fv.logWS
		case "log-rooms":
			cfg.LogRooms = *fv.logRooms
		case "log-debug":
			cfg.LogDebug = *fv.logDebug
		case "storyteller-provider":
			cfg.StorytellerProvider = *fv.storytellerProvider
		case "storyteller-model":
			cfg.StorytellerModel = *fv.storytellerModel
		case "storyteller-ollama-url":
			cfg.StorytellerOllamaURL = *fv.storytellerOllamaURL
		case "storyteller-url":
			cfg.StorytellerURL = *fv.storytellerURL
		case "storyteller-api-key":
			cfg.StorytellerAPIKey = *fv.storytellerAPIKey
		case "storyteller-temperature":
			cfg.StorytellerTemperature = *fv.storytellerTemperature
		case "storyteller-thinking":
			cfg.StorytellerThinking = *fv.storytellerThinking
		case "groq-api-key":
			cfg.GroqAPIKey = *fv.groqAPIKey
		}
	})
}
