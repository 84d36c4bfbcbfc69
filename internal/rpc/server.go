// Package rpc implements the §6 wire contract: JSON-RPC 2.0 request/
// notification framing over a single bidirectional WebSocket connection
// per client. It is the transport layer spec.md §1 marks out of scope
// ("The JSON-RPC transport framing and HTTP server plumbing... §6 fixes
// the wire contract") — this package is that fixed contract's concrete
// implementation, dispatching to internal/sessionmgr, internal/session,
// and internal/asyncagent.
//
// Grounded on the teacher's internal/gateway/ws_control_plane.go: a
// gorilla/websocket.Upgrader, one read-loop/write-loop goroutine pair per
// connection, a buffered outbound send channel, and ping/pong keepalive
// deadlines. The frame shape itself follows spec §6's JSON-RPC 2.0
// contract instead of the teacher's bespoke wsFrame envelope.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexus-contrib/agentmesh/internal/agentrt"
	"github.com/nexus-contrib/agentmesh/internal/asyncagent"
	"github.com/nexus-contrib/agentmesh/internal/channelrouter"
	"github.com/nexus-contrib/agentmesh/internal/continuation"
	"github.com/nexus-contrib/agentmesh/internal/session"
	"github.com/nexus-contrib/agentmesh/internal/sessionmgr"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// JSON-RPC 2.0 standard error codes (spec §6, §7).
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeSessionNotFound = -32001
	CodeAgentNotFound   = -32001
)

const (
	maxPayloadBytes = 1 << 20
	writeWait       = 10 * time.Second
	pongWait        = 45 * time.Second
	pingInterval    = 20 * time.Second
)

// Request is an inbound JSON-RPC 2.0 request or notification. ID is nil
// for a notification (no response expected).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is an outbound JSON-RPC 2.0 notification (no id).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Deps bundles the process-wide collaborators the RPC server dispatches
// against.
type Deps struct {
	Sessions  *sessionmgr.Manager
	Async     *asyncagent.Manager
	AgentDeps func() session.Deps // fresh Deps per session (shared registries, fresh per-session state)
	Log       *slog.Logger
	Metrics   RPCRecorder
}

// RPCRecorder is the subset of *observability.Metrics the wire layer
// reports to. Kept narrow so this package never imports
// internal/observability directly.
type RPCRecorder interface {
	RecordRPCRequest(method, status string, durationSeconds float64)
}

// Server upgrades inbound HTTP connections to WebSocket and dispatches
// JSON-RPC frames against Deps.
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer returns a Server ready to be mounted as an http.Handler.
func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: deps.Log,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	c := &conn1{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	c.run()
}

// conn1 is one client connection; it may own zero or more sessions (a
// client typically starts one, but nothing in §6 prevents more).
type conn1 struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]bool
}

// Notify satisfies session.NotificationSink: every notification a Session
// emits is framed as a JSON-RPC notification and pushed to this
// connection's send channel (spec §5 "The client connection writer must
// serialize outbound frames per session" — the single send channel plus
// single writeLoop goroutine is that serialization point).
func (c *conn1) Notify(method string, params map[string]any) {
	c.writeJSON(Notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *conn1) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.server.log.Error("rpc: marshal outbound frame failed", "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

func (c *conn1) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *conn1) close() {
	c.cancel()
	c.mu.Lock()
	for id := range c.sessions {
		c.server.deps.Sessions.Destroy(id)
	}
	c.mu.Unlock()
	close(c.send)
	_ = c.conn.Close()
}

func (c *conn1) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn1) readLoop() {
	c.conn.SetReadLimit(maxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.writeJSON(Response{JSONRPC: "2.0", Error: &Error{Code: CodeParseError, Message: "parse error"}})
			continue
		}
		if req.Method == "" {
			c.writeJSON(errResponse(req.ID, CodeInvalidRequest, "missing method"))
			continue
		}
		c.dispatch(req)
	}
}

func errResponse(id json.RawMessage, code int, msg string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg}}
}

// dispatch routes one request to its handler and, unless it was a
// notification (no ID), writes exactly one Response.
func (c *conn1) dispatch(req Request) {
	start := time.Now()
	result, rpcErr := c.handle(req)
	if c.server.deps.Metrics != nil {
		status := "ok"
		if rpcErr != nil {
			status = "error"
		}
		c.server.deps.Metrics.RecordRPCRequest(req.Method, status, time.Since(start).Seconds())
	}
	if len(req.ID) == 0 {
		return // notification: no response expected
	}
	if rpcErr != nil {
		c.writeJSON(errResponse(req.ID, rpcErr.Code, rpcErr.Message))
		return
	}
	c.writeJSON(Response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (c *conn1) handle(req Request) (any, *Error) {
	switch req.Method {
	case "startSession":
		return c.handleStartSession(req.Params)
	case "sendUserMessage":
		return c.handleSendUserMessage(req.Params)
	case "provideToolResult":
		return c.handleProvideToolResult(req.Params)
	case "stopSession":
		return c.handleStopSession(req.Params)
	case "agent.list":
		return c.handleAgentList(req.Params)
	case "session.switch_agent":
		return c.handleSwitchAgent(req.Params)
	case "session.current_agent":
		return c.handleCurrentAgent(req.Params)
	case "session.handoff":
		return c.handleHandoff(req.Params)
	case "channel.updateVisibility":
		return c.handleUpdateVisibility(req.Params)
	case "channel.stats":
		return c.handleChannelStats(req.Params)
	case "channel.history":
		return c.handleChannelHistory(req.Params)
	case "async.createAgent":
		return c.handleAsyncCreateAgent(req.Params)
	case "async.startAgent":
		return c.handleAsyncStartAgent(req.Params)
	case "async.stopAgent":
		return c.handleAsyncStopAgent(req.Params)
	case "async.sleepAgent":
		return c.handleAsyncSleepAgent(req.Params)
	case "async.wakeAgent":
		return c.handleAsyncWakeAgent(req.Params)
	case "async.sendTask":
		return c.handleAsyncSendTask(req.Params)
	case "async.getAgentStates":
		return c.handleAsyncStates(req.Params)
	case "async.broadcastEvent":
		return c.handleAsyncBroadcastEvent(req.Params)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
}

func bindParams[T any](raw json.RawMessage) (T, *Error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	return v, nil
}

func (c *conn1) sessionFor(id string) (*session.Session, *Error) {
	sess, ok := c.server.deps.Sessions.Get(id)
	if !ok {
		return nil, &Error{Code: CodeSessionNotFound, Message: fmt.Sprintf("unknown session %q", id)}
	}
	return sess, nil
}

type startSessionParams struct {
	UserID        string `json:"userId"`
	SessionParams struct {
		Model    string `json:"model"`
		Language string `json:"language"`
		Context  string `json:"context"`
	} `json:"sessionParams"`
}

func (c *conn1) handleStartSession(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[startSessionParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, err := c.server.deps.Sessions.Create(p.UserID, c.server.deps.AgentDeps(), c, "")
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	c.mu.Lock()
	if c.sessions == nil {
		c.sessions = make(map[string]bool)
	}
	c.sessions[sess.ID] = true
	c.mu.Unlock()
	return map[string]any{"sessionId": sess.ID, "status": sess.Status}, nil
}

type sendUserMessageParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func (c *conn1) handleSendUserMessage(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[sendUserMessageParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	reply, err := sess.SendUserMessage(c.ctx, p.Message, func(m models.ChannelMessage) {
		c.writeJSON(channelMessageNotification(m))
	})
	if err != nil {
		return map[string]any{"messageId": "", "status": models.MessageError, "error": err.Error()}, nil
	}
	return map[string]any{"messageId": "", "status": models.MessageOK, "ai_response": reply}, nil
}

func channelMessageNotification(m models.ChannelMessage) Notification {
	return Notification{
		JSONRPC: "2.0",
		Method:  "ChannelMessageNotification",
		Params: map[string]any{
			"channel": m.Channel,
			"content": m.Content,
			"metadata": map[string]any{
				"sequence":  m.Sequence,
				"timestamp": m.Metadata.Timestamp,
				"agentId":   m.Metadata.AgentID,
				"sessionId": m.Metadata.SessionID,
			},
		},
	}
}

type provideToolResultParams struct {
	SessionID  string `json:"sessionId"`
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

// handleProvideToolResult acknowledges a client-executed tool result.
// This runtime's tools all execute server-side (internal/tools), so there
// is no pending client-side call to resolve; the method exists to satisfy
// the §6 wire contract for clients that offer client-side tool execution,
// and simply validates the session exists.
func (c *conn1) handleProvideToolResult(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[provideToolResultParams](raw)
	if perr != nil {
		return nil, perr
	}
	if _, serr := c.sessionFor(p.SessionID); serr != nil {
		return nil, serr
	}
	return map[string]any{"status": models.ToolResultOK}, nil
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func (c *conn1) handleStopSession(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[sessionIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	if _, serr := c.sessionFor(p.SessionID); serr != nil {
		return nil, serr
	}
	c.server.deps.Sessions.Destroy(p.SessionID)
	c.mu.Lock()
	delete(c.sessions, p.SessionID)
	c.mu.Unlock()
	return map[string]any{"status": models.SessionStopped}, nil
}

func (c *conn1) handleAgentList(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[sessionIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	return map[string]any{"agents": sess.AgentList()}, nil
}

type switchAgentParams struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"sessionId"`
}

func (c *conn1) handleSwitchAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[switchAgentParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	if err := sess.SwitchAgent(p.AgentID); err != nil {
		return map[string]any{"success": false}, nil
	}
	return map[string]any{"success": true, "current_agent": sess.ActiveAgentID()}, nil
}

func (c *conn1) handleCurrentAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[sessionIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	return map[string]any{"current_agent": sess.ActiveAgentID()}, nil
}

type handoffParams struct {
	ToAgent   string `json:"to_agent"`
	SessionID string `json:"sessionId"`
}

func (c *conn1) handleHandoff(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[handoffParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	from := sess.ActiveAgentID()
	if err := sess.SwitchAgent(p.ToAgent); err != nil {
		return map[string]any{"success": false, "from_agent": from}, nil
	}
	return map[string]any{"success": true, "from_agent": from, "to_agent": sess.ActiveAgentID()}, nil
}

type updateVisibilityParams struct {
	SessionID      string `json:"sessionId"`
	ShowCommentary bool   `json:"showCommentary"`
	ShowAnalysis   bool   `json:"showAnalysis"`
}

func (c *conn1) handleUpdateVisibility(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[updateVisibilityParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	sess.SetVisibility(models.VisibilityPrefs{ShowCommentary: p.ShowCommentary, ShowAnalysis: p.ShowAnalysis})
	return map[string]any{"success": true, "sessionId": p.SessionID}, nil
}

type channelHistoryParams struct {
	SessionID     string   `json:"sessionId"`
	Channels      []string `json:"channels"`
	Limit         int      `json:"limit"`
	SinceSequence int64    `json:"sinceSequence"`
}

func (c *conn1) handleChannelHistory(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[channelHistoryParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	channels := make([]models.Channel, len(p.Channels))
	for i, ch := range p.Channels {
		channels[i] = models.Channel(ch)
	}
	messages, total := sess.History(channels, p.Limit, p.SinceSequence)
	return map[string]any{"messages": messages, "totalCount": total}, nil
}

func (c *conn1) handleChannelStats(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[sessionIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	sess, serr := c.sessionFor(p.SessionID)
	if serr != nil {
		return nil, serr
	}
	analysis, commentary, final := sess.Stats()
	return map[string]any{"analysis": analysis, "commentary": commentary, "final": final}, nil
}

type asyncAgentIDParams struct {
	AgentID string `json:"agent_id"`
}

// handleAsyncCreateAgent builds a background-worker Agent from the same
// static manifest a session's default agent resolves against (spec
// §4.11), using Deps.AgentDeps for the shared Registry/Tools/Providers so
// async workers and interactive sessions see one consistent tool/model
// configuration.
func (c *conn1) handleAsyncCreateAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncAgentIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil || c.server.deps.AgentDeps == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	deps := c.server.deps.AgentDeps()
	cfg, ok := deps.Registry.Get(p.AgentID)
	if !ok {
		return nil, &Error{Code: CodeAgentNotFound, Message: fmt.Sprintf("unknown agent %q", p.AgentID)}
	}
	provider, ok := deps.Providers[cfg.Provider]
	if !ok {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("unknown provider %q for agent %q", cfg.Provider, p.AgentID)}
	}
	router := channelrouter.New("async:"+models.CanonicalID(cfg.ID), models.VisibilityPrefs{})
	router.SetAgent(models.CanonicalID(cfg.ID))
	contn := continuation.New(continuation.DefaultMaxDepth)
	agent := agentrt.New(cfg, deps.Tools, provider, router, contn, nil)
	agent.SetSchemaPolicy(deps.SchemaPolicy)
	if deps.Metrics != nil {
		agent.SetMetrics(deps.Metrics)
	}
	c.server.deps.Async.CreateAgent(models.CanonicalID(cfg.ID), agent)
	return map[string]any{"agent_id": models.CanonicalID(cfg.ID), "state": string(asyncagent.StateIdle)}, nil
}

func (c *conn1) handleAsyncStartAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncAgentIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	if err := c.server.deps.Async.StartAgent(p.AgentID); err != nil {
		return nil, &Error{Code: CodeAgentNotFound, Message: err.Error()}
	}
	return map[string]any{"status": "started"}, nil
}

func (c *conn1) handleAsyncStopAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncAgentIDParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	if err := c.server.deps.Async.StopAgent(p.AgentID); err != nil {
		return nil, &Error{Code: CodeAgentNotFound, Message: err.Error()}
	}
	return map[string]any{"status": "stopped"}, nil
}

type asyncSleepParams struct {
	AgentID    string   `json:"agent_id"`
	DurationMs int64    `json:"duration_ms"`
	WakeEvents []string `json:"wake_events"`
}

func (c *conn1) handleAsyncSleepAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncSleepParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	if err := c.server.deps.Async.SleepAgent(p.AgentID, time.Duration(p.DurationMs)*time.Millisecond, p.WakeEvents); err != nil {
		return nil, &Error{Code: CodeAgentNotFound, Message: err.Error()}
	}
	return map[string]any{"status": "sleeping"}, nil
}

type asyncWakeParams struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

func (c *conn1) handleAsyncWakeAgent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncWakeParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	if err := c.server.deps.Async.WakeAgent(p.AgentID, p.Reason); err != nil {
		return nil, &Error{Code: CodeAgentNotFound, Message: err.Error()}
	}
	return map[string]any{"status": "woken"}, nil
}

type asyncBroadcastParams struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func (c *conn1) handleAsyncBroadcastEvent(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncBroadcastParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	c.server.deps.Async.BroadcastEvent(asyncagent.Event{Name: p.Event, Data: p.Data})
	return map[string]any{"status": "broadcast"}, nil
}

type asyncSendTaskParams struct {
	AgentID string `json:"agent_id"`
	Prompt  string `json:"prompt"`
}

func (c *conn1) handleAsyncSendTask(raw json.RawMessage) (any, *Error) {
	p, perr := bindParams[asyncSendTaskParams](raw)
	if perr != nil {
		return nil, perr
	}
	if c.server.deps.Async == nil {
		return nil, &Error{Code: CodeInternalError, Message: "async agent manager not configured"}
	}
	if err := c.server.deps.Async.SendTask(p.AgentID, p.Prompt); err != nil {
		return nil, &Error{Code: CodeAgentNotFound, Message: err.Error()}
	}
	return map[string]any{"status": "queued"}, nil
}

func (c *conn1) handleAsyncStates(_ json.RawMessage) (any, *Error) {
	if c.server.deps.Async == nil {
		return map[string]any{}, nil
	}
	return c.server.deps.Async.States(), nil
}
