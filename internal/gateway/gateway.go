// ABOUTME: Gateway wires the store, dedupe cache, auth and websocket hub into one HTTP handler
// ABOUTME: REST is the source of truth; the hub only accelerates delivery

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Hashimp6/beeeuu-chat/internal/auth"
	"github.com/Hashimp6/beeeuu-chat/internal/dedupe"
	"github.com/Hashimp6/beeeuu-chat/internal/store"
)

// Gateway serves the chat REST API and the websocket transport endpoint.
type Gateway struct {
	store        store.Store
	hub          *Hub
	dedupe       *dedupe.Cache
	verifier     auth.TokenVerifier
	historyLimit int
	logger       *slog.Logger
}

// Options configures optional gateway behavior.
type Options struct {
	// HistoryLimit caps messages per history fetch. Zero means unlimited.
	HistoryLimit int
	Logger       *slog.Logger
}

// New creates a gateway over the given store, credential verifier and
// dedupe cache.
func New(st store.Store, verifier auth.TokenVerifier, dd *dedupe.Cache, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")

	g := &Gateway{
		store:        st,
		hub:          NewHub(logger),
		dedupe:       dd,
		verifier:     verifier,
		historyLimit: opts.HistoryLimit,
		logger:       logger,
	}

	// Room joins are limited to conversation participants.
	g.hub.SetAuthorizer(func(conversationID, userID string) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conv, err := st.GetConversation(ctx, conversationID)
		if err != nil {
			return false
		}
		return conv.ParticipantA == userID || conv.ParticipantB == userID
	})

	return g
}

// Handler returns the HTTP handler serving the full API surface.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	authed := auth.HTTPAuthMiddleware(g.verifier)

	mux.Handle("GET /api/conversations", authed(http.HandlerFunc(g.handleListConversations)))
	mux.Handle("POST /api/conversations", authed(http.HandlerFunc(g.handleCreateConversation)))
	mux.Handle("GET /api/conversations/{id}", authed(http.HandlerFunc(g.handleGetConversation)))
	mux.Handle("POST /api/messages/send", authed(http.HandlerFunc(g.handleSendMessage)))
	mux.HandleFunc("GET /ws", g.handleWS)
	mux.HandleFunc("GET /healthz", g.handleHealth)

	return mux
}

// handleWS authenticates a websocket request and hands it to the hub.
// Browsers cannot set headers on websocket dials, so the credential may
// arrive as a query parameter instead of an Authorization header.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}
	if token == "" {
		http.Error(w, `{"error":"missing credential"}`, http.StatusUnauthorized)
		return
	}

	userID, err := g.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	g.hub.ServeWS(w, r, userID)
}

// handleHealth serves GET /healthz.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Run serves the API on addr until ctx is cancelled, then shuts down
// gracefully.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	g.logger.Info("shutting down")
	g.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
