package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AppLogger provides the opt-in diagnostic channels of the server. Each
// enabled channel writes to its own file under the output directory.
type AppLogger struct {
	outputDir    string
	logRequests  bool
	logWS        bool
	logRooms     bool
	debug        bool
	wsPath       string
	requestLog   io.WriteCloser
	wsLog        io.WriteCloser
	roomLog      io.WriteCloser
	mu           sync.Mutex
	requestCount int
	wsCount      int
	roomCount    int
}

// Global application logger (used by server)
var appLogger *AppLogger

// devMode makes logError dump every room in devRooms.
var (
	devMode  bool
	devRooms *RoomRegistry
)

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogWS       bool
	LogRooms    bool
	Debug       bool
	WSPath      string
}

// NewAppLogger creates a new application logger
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logWS:       config.LogWS,
		logRooms:    config.LogRooms,
		debug:       config.Debug,
		wsPath:      config.WSPath,
	}

	if al.outputDir == "" {
		return al, nil
	}
	if err := os.MkdirAll(al.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	open := func(enabled bool, name string, dst *io.WriteCloser) error {
		if !enabled {
			return nil
		}
		f, err := os.OpenFile(filepath.Join(al.outputDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		*dst = f
		return nil
	}
	if err := open(al.logRequests, "requests.log", &al.requestLog); err != nil {
		return nil, err
	}
	if err := open(al.logWS, "websocket.log", &al.wsLog); err != nil {
		al.Close()
		return nil, err
	}
	if err := open(al.logRooms, "rooms.log", &al.roomLog); err != nil {
		al.Close()
		return nil, err
	}
	return al, nil
}

// Close closes all open log files
func (al *AppLogger) Close() {
	for _, f := range []io.WriteCloser{al.requestLog, al.wsLog, al.roomLog} {
		if f != nil {
			f.Close()
		}
	}
}

// LogRequest logs an HTTP request and response
func (al *AppLogger) LogRequest(method, url string, reqBody []byte, status int, header http.Header, respBody []byte) {
	if !al.logRequests || al.requestLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.requestCount++
	timestamp := time.Now().Format("15:04:05.000")

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n========== REQUEST #%d [%s] ==========\n", al.requestCount, timestamp)
	fmt.Fprintf(&buf, "%s %s\n", method, url)

	if len(reqBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Request Body ---\n")
		buf.Write(reqBody)
		buf.WriteString("\n")
	}

	if status != 0 {
		fmt.Fprintf(&buf, "\n--- Response [%d %s] ---\n", status, http.StatusText(status))
		for k, v := range header {
			fmt.Fprintf(&buf, "%s: %s\n", k, strings.Join(v, ", "))
		}
	}

	if len(respBody) > 0 {
		fmt.Fprintf(&buf, "\n--- Response Body ---\n")
		if len(respBody) > 5000 {
			buf.Write(respBody[:5000])
			fmt.Fprintf(&buf, "\n... (truncated, %d bytes total)\n", len(respBody))
		} else {
			buf.Write(respBody)
		}
		buf.WriteString("\n")
	}

	al.requestLog.Write(buf.Bytes())
}

// LogWebSocket logs one frame. direction is IN or OUT.
func (al *AppLogger) LogWebSocket(direction, connID, message string) {
	if !al.logWS || al.wsLog == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.wsCount++
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Fprintf(al.wsLog, "[%s] #%d %s [Conn %s]: %s\n",
		timestamp, al.wsCount, direction, connID, message)
}

// LogRoom dumps a room snapshot.
func (al *AppLogger) LogRoom(s RoomSnapshot) {
	if !al.logRooms || al.roomLog == nil {
		return
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		log.Printf("LogRoom: marshal room '%s': %v", s.ID, err)
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	al.roomCount++
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(al.roomLog, "\n========== ROOM '%s' #%d [%s] ==========\n%s\n", s.ID, al.roomCount, timestamp, data)
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(format string, args ...any) {
	if !al.debug {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logWS || al.logRooms || al.debug
}

// LoggingHandler wraps an http.Handler to log requests and responses.
// WebSocket upgrades are passed through without recording because they
// require http.Hijacker which ResponseRecorder doesn't support.
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if l.Logger.wsPath != "" && strings.HasPrefix(r.URL.Path, l.Logger.wsPath) {
		l.Logger.LogRequest(r.Method, r.URL.String(), nil, 0, nil, []byte("[WebSocket upgrade]"))
		l.Handler.ServeHTTP(w, r)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	rec := httptest.NewRecorder()
	l.Handler.ServeHTTP(rec, r)

	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	respBody := rec.Body.Bytes()
	w.Write(respBody)

	l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, rec.Code, rec.Header(), respBody)
}

// LogWSMessage logs a WebSocket frame using the global logger
func LogWSMessage(direction, connID, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, connID, message)
	}
}

// LogRoomState dumps a room snapshot using the global logger
func LogRoomState(s RoomSnapshot) {
	if appLogger != nil {
		appLogger.LogRoom(s)
	}
}

// roomLoggingEnabled reports whether LogRoomState would write anything, so
// callers can skip building the snapshot.
func roomLoggingEnabled() bool {
	return appLogger != nil && appLogger.logRooms && appLogger.roomLog != nil
}

// DebugLog logs a debug message using the global logger
func DebugLog(format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug(format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}

// logError logs an error with context and dumps every room in dev mode.
// Must not be called with a room lock held.
func logError(context string, err error) {
	log.Printf("ERROR [%s]: %v", context, err)
	if devMode && devRooms != nil {
		data, _ := json.Marshal(devRooms.Snapshots())
		log.Printf("Room dump: %s", data)
	}
}
