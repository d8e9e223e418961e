package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/runner"
	"github.com/aqakit/brain/pkg/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS layer on the REST routes; the
	// live channel accepts any origin and relies on the same network
	// boundary as the rest of the control API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsMessage is one client frame on the live execution channel.
type wsMessage struct {
	Action string `json:"action"`

	// Plan source fields mirror the execute endpoint.
	Plan        interface{} `json:"plan,omitempty"`
	PlanFile    string      `json:"plan_file,omitempty"`
	Requirement string      `json:"requirement,omitempty"`
	BaseURL     string      `json:"base_url,omitempty"`
	TimeoutS    int         `json:"timeout_s,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
}

// wsEvent is one server frame.
type wsEvent struct {
	Type        string                 `json:"type"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	StepID      string                 `json:"step_id,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// wsSession holds per-connection state. The gorilla connection allows one
// concurrent writer, so every outbound frame goes through send.
type wsSession struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	cancel      context.CancelFunc
	executionID string
	cancelled   bool
}

// handleWSExecute upgrades the connection and serves the live execution
// channel: execute starts a run and streams its events, cancel terminates
// it, ping answers pong.
func (s *Server) handleWSExecute(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("websocket upgrade failed")
		}
		return
	}
	if m := s.metrics(); m != nil {
		m.WSConnectionOpened()
	}

	sess := &wsSession{server: s, conn: conn}
	defer func() {
		sess.stopExecution()
		conn.Close()
		if m := s.metrics(); m != nil {
			m.WSConnectionClosed()
		}
	}()

	sess.send(wsEvent{Type: "connected"})
	sess.readLoop(r.Context())
}

func (sess *wsSession) readLoop(ctx context.Context) {
	for {
		var msg wsMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Action {
		case "ping":
			sess.send(wsEvent{Type: "pong"})
		case "cancel":
			sess.requestCancel()
		case "execute":
			sess.startExecution(ctx, &msg)
		default:
			sess.sendError("", diag.Newf(diag.CodeInvalidJSON,
				"unknown action %q, expected execute, cancel, or ping", msg.Action))
		}
	}
}

// startExecution resolves the plan and runs it in the background so the
// read loop keeps serving cancel and ping frames.
func (sess *wsSession) startExecution(ctx context.Context, msg *wsMessage) {
	s := sess.server

	sess.mu.Lock()
	if sess.cancel != nil {
		sess.mu.Unlock()
		sess.sendError("", diag.New(diag.CodeInternalError,
			"an execution is already in progress on this connection"))
		return
	}
	sess.mu.Unlock()

	req := executeRequest{
		Plan:        msg.Plan,
		PlanFile:    msg.PlanFile,
		Requirement: msg.Requirement,
		BaseURL:     msg.BaseURL,
		TimeoutS:    msg.TimeoutS,
		Tags:        msg.Tags,
	}
	plan, err := s.resolvePlan(ctx, &req)
	if err != nil {
		sess.sendError("", err)
		return
	}
	if s.deps.Runner == nil {
		err := s.deps.RunnerErr
		if err == nil {
			err = diag.New(diag.CodeRunnerNotFound, "executor binary is not configured")
		}
		sess.sendError("", err)
		return
	}

	executionID := newExecutionID()
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		sess.sendError(executionID, diag.Wrap(diag.CodeInternalError, "failed to start event stream", err))
		return
	}
	events.Subscribe(sess.forward, nil)

	runCtx, cancel := context.WithCancel(ctx)
	sess.mu.Lock()
	sess.cancel = cancel
	sess.executionID = executionID
	sess.cancelled = false
	sess.mu.Unlock()

	var opts runner.RunOptions
	if msg.TimeoutS > 0 {
		opts.Timeout = time.Duration(msg.TimeoutS) * time.Second
	}

	go func() {
		defer func() {
			sess.mu.Lock()
			sess.cancel = nil
			sess.executionID = ""
			sess.mu.Unlock()
		}()

		streamRunner := s.deps.Runner.WithEventSink(events)
		result, err := streamRunner.RunStreamed(runCtx, plan, executionID, opts)
		if err != nil {
			if sess.wasCancelled() {
				s.recordHistory(context.Background(), plan, errorResult(), msg.Tags)
				sess.send(wsEvent{Type: "execution_cancelled", ExecutionID: executionID})
				return
			}
			s.recordHistory(context.Background(), plan, errorResult(), msg.Tags)
			return
		}
		s.recordHistory(context.Background(), plan, result, msg.Tags)
	}()
}

// forward translates execution events into client frames. A failed event
// after a cancel request is suppressed in favor of execution_cancelled.
func (sess *wsSession) forward(ev telemetry.Event) {
	out := wsEvent{
		ExecutionID: ev.ExecutionID,
		StepID:      ev.StepID,
		Message:     ev.Message,
		Data:        ev.Data,
		Timestamp:   ev.Timestamp,
	}
	switch ev.Type {
	case telemetry.EventTypeExecutionStarted:
		out.Type = "execution_started"
	case telemetry.EventTypeStepStarted:
		out.Type = "step_started"
	case telemetry.EventTypeStepCompleted:
		out.Type = "step_completed"
	case telemetry.EventTypeProgress:
		out.Type = "progress"
	case telemetry.EventTypeExecutionCompleted:
		out.Type = "execution_completed"
	case telemetry.EventTypeExecutionCancelled:
		out.Type = "execution_cancelled"
	case telemetry.EventTypeExecutionFailed:
		if sess.wasCancelled() {
			return
		}
		out.Type = "error"
	default:
		return
	}
	sess.send(out)
}

func (sess *wsSession) requestCancel() {
	sess.mu.Lock()
	cancel := sess.cancel
	if cancel != nil {
		sess.cancelled = true
	}
	sess.mu.Unlock()

	if cancel == nil {
		sess.sendError("", diag.New(diag.CodeInternalError, "no execution in progress"))
		return
	}
	cancel()
}

// stopExecution terminates a running execution when the connection goes
// away. No frames are sent; the peer is gone.
func (sess *wsSession) stopExecution() {
	sess.mu.Lock()
	cancel := sess.cancel
	if cancel != nil {
		sess.cancelled = true
	}
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (sess *wsSession) wasCancelled() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cancelled
}

func (sess *wsSession) send(ev wsEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.conn.WriteJSON(ev); err != nil && sess.server.log != nil {
		sess.server.log.WithError(err).Debug("websocket write failed")
	}
}

func (sess *wsSession) sendError(executionID string, err error) {
	ev := wsEvent{Type: "error", ExecutionID: executionID, Message: err.Error()}
	if se := diag.AsStructured(err); se != nil {
		ev.Data = map[string]interface{}{"code": se.Code.String()}
	}
	sess.send(ev)
}

func newExecutionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
