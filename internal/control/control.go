// Package control implements a small net/http JSON surface for operating
// a running Engine (add_connection, add_listener, session snapshots,
// logout) plus a mounted grpchealth.v1 health endpoint. It is additive
// operator tooling, not part of the FIX wire protocol: nothing here
// carries session-layer semantics, it only calls the Engine's existing
// Go API.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/grpchealth"

	"github.com/fixdaemon/gofix/internal/engine"
	"github.com/fixdaemon/gofix/internal/fix/fixver"
)

// healthServiceName is the name reported on the health endpoint, mirroring
// the teacher's "bfd.v1.BfdService" convention (cmd/gobfd/main.go's
// newGRPCServer).
const healthServiceName = "gofix.v1.Engine"

// Controller is a thin adapter between the HTTP control surface and an
// Engine, mirroring the teacher's BFDServer shape (internal/server/
// server.go: every method just delegates to the manager).
type Controller struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates a Controller bound to eng.
func New(eng *engine.Engine, logger *slog.Logger) *Controller {
	return &Controller{
		eng:    eng,
		logger: logger.With(slog.String("component", "control")),
	}
}

// Handler builds the full HTTP mux: the JSON control routes plus the
// grpchealth.v1 health endpoint, wrapped with the teacher's
// logging/recovery middleware pattern (internal/server/interceptors.go,
// translated from ConnectRPC unary interceptors to plain http.Handler
// middleware).
func (c *Controller) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", c.handleAddSession)
	mux.HandleFunc("GET /sessions", c.handleListSessions)
	mux.HandleFunc("DELETE /sessions/{token}", c.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{token}/logout", c.handleLogoutSession)

	checker := grpchealth.NewStaticChecker(healthServiceName)
	mux.Handle(grpchealth.NewHandler(checker))

	return recoveryMiddleware(c.logger, loggingMiddleware(c.logger, mux))
}

// -------------------------------------------------------------------------
// Request/response shapes
// -------------------------------------------------------------------------

// addSessionRequest's Kind distinguishes a listener request from a connection
// request within POST /sessions -- the two underlying Engine operations
// (AddListener, AddConnection) are different enough they cannot share one
// Engine call, but operators address them through the same resource path.
type addSessionRequest struct {
	Kind string `json:"kind"` // "listener" or "connection"

	// listener fields
	SenderCompID string `json:"sender_comp_id"`
	Address      string `json:"address"`

	// connection fields (Kind == "connection")
	FIXVersion            string `json:"fix_version,omitempty"`
	DefaultMessageVersion string `json:"default_message_version,omitempty"`
	TargetCompID          string `json:"target_comp_id,omitempty"`
}

type addSessionResponse struct {
	Token uint32 `json:"token"`
}

type sessionView struct {
	Token        uint32 `json:"token"`
	Listener     uint32 `json:"listener,omitempty"`
	SenderCompID string `json:"sender_comp_id"`
	TargetCompID string `json:"target_comp_id,omitempty"`
	Status       string `json:"status"`
}

type listSessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (c *Controller) handleAddSession(w http.ResponseWriter, r *http.Request) {
	var req addSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	switch req.Kind {
	case "listener":
		c.addListener(w, req)
	case "connection":
		c.addConnection(w, req)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("kind %q: %w", req.Kind, errUnknownSessionKind))
	}
}

var errUnknownSessionKind = errors.New(`must be "listener" or "connection"`)

func (c *Controller) addListener(w http.ResponseWriter, req addSessionRequest) {
	token, err := c.eng.AddListener(engine.ListenerConfig{
		SenderCompID: req.SenderCompID,
		Address:      req.Address,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, addSessionResponse{Token: uint32(token)})
}

func (c *Controller) addConnection(w http.ResponseWriter, req addSessionRequest) {
	fv, err := fixver.ParseBeginString(req.FIXVersion)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("fix_version: %w", err))
		return
	}

	mv := fixver.DefaultMessageVersion(fv)
	if fv.IsFIXT() {
		mv = fixver.MaxMessageVersion(fv)
	}
	if req.DefaultMessageVersion != "" {
		parsed, ok := parseMessageVersionLabel(req.DefaultMessageVersion)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("default_message_version %q is invalid", req.DefaultMessageVersion))
			return
		}
		mv = parsed
	}

	token, err := c.eng.AddConnection(engine.ConnConfig{
		FIXVersion:            fv,
		DefaultMessageVersion: mv,
		SenderCompID:          req.SenderCompID,
		TargetCompID:          req.TargetCompID,
		Address:               req.Address,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, addSessionResponse{Token: uint32(token)})
}

// parseMessageVersionLabel mirrors config.parseMessageVersionLabel; kept
// local rather than exported from internal/config to avoid a control ->
// config dependency for one small helper.
func parseMessageVersionLabel(s string) (fixver.MessageVersion, bool) {
	for v := fixver.MsgVer40; v <= fixver.MsgVer50SP2; v++ {
		if v.String() == s {
			return v, true
		}
	}
	return 0, false
}

func (c *Controller) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := c.eng.Sessions()
	resp := listSessionsResponse{Sessions: make([]sessionView, 0, len(infos))}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, sessionView{
			Token:        uint32(info.Conn),
			Listener:     uint32(info.Listener),
			SenderCompID: info.SenderCompID,
			TargetCompID: info.TargetCompID,
			Status:       info.Status.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *Controller) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromPath(r.PathValue("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.eng.Logout(token)
	w.WriteHeader(http.StatusAccepted)
}

func (c *Controller) handleLogoutSession(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromPath(r.PathValue("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.eng.Logout(token)
	w.WriteHeader(http.StatusAccepted)
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

var errInvalidToken = errors.New("token must be a positive integer")

func tokenFromPath(s string) (engine.Token, error) {
	var n uint32
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n == 0 {
		return 0, errInvalidToken
	}
	return engine.Token(n), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
