// Package responder implements the demo backend used behind the gateway: a
// fixed JSON greeting service that identifies the replica answering each
// request. It is intentionally stateless so copies can run side by side in
// container or load-balancing exercises.
package responder

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"rategate/internal/observability/logging"
)

// DefaultAddr is the listen address the responder binds when none is configured.
const DefaultAddr = ":5000"

const (
	rootMessage  = "Hello from Python server!"
	helloMessage = "Hello world from Flask!"
)

type greeting struct {
	Message  string `json:"message"`
	ServerID string `json:"server_id"`
}

// ServerIDFromEnv captures the replica identifier from the HOSTNAME
// environment variable. It is read exactly once at startup; an unset or empty
// variable yields the literal "unknown".
func ServerIDFromEnv() string {
	if id := os.Getenv("HOSTNAME"); id != "" {
		return id
	}
	return "unknown"
}

// Handler answers the responder's two routes with static greetings embedding
// the server ID captured at construction time. The ID never changes for the
// lifetime of the process.
type Handler struct {
	serverID string
}

// NewHandler builds a Handler bound to the provided server ID.
func NewHandler(serverID string) *Handler {
	if serverID == "" {
		serverID = "unknown"
	}
	return &Handler{serverID: serverID}
}

// ServerID reports the identifier embedded in every response.
func (h *Handler) ServerID() string {
	return h.serverID
}

// Root serves GET / with the root greeting. Any other path falls through to a
// 404 so unmatched routes behave like an empty mux.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.serve(w, r, rootMessage)
}

// Hello serves GET /hello with the hello greeting.
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, helloMessage)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, message string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, greeting{Message: message, ServerID: h.serverID})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Config controls the responder HTTP server.
type Config struct {
	Addr     string
	ServerID string
	Logger   *slog.Logger
}

// NewServer assembles the route table and returns an http.Server ready to be
// run. Routes are registered once, before the listener starts accepting
// connections.
func NewServer(cfg Config) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	handler := NewHandler(cfg.ServerID)
	mux := http.NewServeMux()
	mux.HandleFunc("/", handler.Root)
	mux.HandleFunc("/hello", handler.Hello)

	chain := http.Handler(mux)
	if cfg.Logger != nil {
		chain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: cfg.Logger})(chain)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
