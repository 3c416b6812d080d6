package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORT", "")
	cfg := loadConfig(filepath.Join(dir, "missing.json"), filepath.Join(dir, "missing.env"))
	require.Equal(t, defaultConfig(), cfg)
}

func TestLoadConfigLayering(t *testing.T) {
	dir := t.TempDir()
	dotenv := writeFile(t, dir, ".env", "DB=from-dotenv.db\nEVENT_BURST=7\nLOG_WS=true\n")
	jsonPath := writeFile(t, dir, "config.json", `{"event_burst": 9, "token_ttl": "90m", "storyteller_provider": "ollama"}`)

	// godotenv writes straight to the process environment.
	t.Cleanup(func() {
		os.Unsetenv("DB")
		os.Unsetenv("LOG_WS")
	})
	t.Setenv("PORT", "")
	t.Setenv("EVENT_BURST", "5")
	t.Setenv("ACCESS_TOKEN_SECRET", "from-env")
	t.Setenv("TOKEN_TTL", "2h")

	cfg := loadConfig(jsonPath, dotenv)

	require.Equal(t, "from-dotenv.db", cfg.DB, ".env fills unset variables")
	require.True(t, cfg.LogWS)
	require.Equal(t, "from-env", cfg.TokenSecret, "env vars override defaults")
	require.Equal(t, 9, cfg.EventBurst, "JSON overrides env")
	require.Equal(t, 90*time.Minute, cfg.TokenTTL, "JSON durations parse")
	require.Equal(t, "ollama", cfg.StorytellerProvider)
	require.Equal(t, "/ws/", cfg.WSPath, "untouched fields keep defaults")
}

func TestFlagsOverrideEverything(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "config.json", `{"addr": ":7000", "dev": false}`)
	t.Setenv("PORT", "")

	fs := flag.NewFlagSet("moonlit", flag.ContinueOnError)
	fv := registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"-config", jsonPath, "-addr", ":9000", "-dev", "-event-rate", "0"}))

	cfg := loadConfig(*fv.configPath, filepath.Join(dir, "none.env"))
	require.Equal(t, ":7000", cfg.Addr)

	fv.applyTo(&cfg)
	require.Equal(t, ":9000", cfg.Addr)
	require.True(t, cfg.Dev)
	require.Zero(t, cfg.EventRate)
	require.Equal(t, 40, cfg.EventBurst, "flags not passed keep loaded values")
}

func TestPortOverridesAddr(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ADDR", "127.0.0.1:8080")
	t.Setenv("PORT", "5000")

	cfg := loadConfig(filepath.Join(dir, "none.json"), filepath.Join(dir, "none.env"))
	require.Equal(t, "127.0.0.1:5000", cfg.Addr)

	require.Equal(t, ":5000", withPort(":8080", "5000"))
	require.Equal(t, ":5000", withPort("garbage", "5000"))
}

func TestInvalidJSONKeepsEarlierLayers(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "config.json", `{"send_buffer": "lots", "token_ttl": "soon", "addr": ":1234"}`)
	t.Setenv("PORT", "")

	cfg := loadConfig(jsonPath, filepath.Join(dir, "none.env"))
	require.Equal(t, 64, cfg.SendBuffer)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, ":1234", cfg.Addr)
}
