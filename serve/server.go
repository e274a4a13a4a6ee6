package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/conversation"
	"github.com/Paranoid-AF/codelet/explain"
	"github.com/Paranoid-AF/codelet/generate"
	"github.com/Paranoid-AF/codelet/sanitize"
	"github.com/Paranoid-AF/codelet/surface"
)

// maxRequestBytes bounds a single request line, which carries a whole buffer.
const maxRequestBytes = 8 << 20

// sessionIdleTTL is how long a session survives without requests.
const sessionIdleTTL = 30 * time.Minute

// Assistant is the engine behind the daemon.
type Assistant interface {
	Complete(ctx context.Context, req *codelet.Request) *codelet.Response
	Explain(ctx context.Context, req *codelet.Request, cache *explain.Cache) *codelet.Response
	BeginChat(language string) *conversation.Session
	Chat(ctx context.Context, sess *conversation.Session, req *codelet.Request) *codelet.Response
	NewConversation(sess *conversation.Session) int
	Strategy() sanitize.Strategy
	Config() *codelet.Config
	Close()
}

// session is the per-editor state kept between connections.
type session struct {
	cache    *explain.Cache
	surface  *surface.Controller
	recorder *surface.Recorder
	limiter  *rate.Limiter

	mu        sync.Mutex
	conv      *conversation.Session
	requestID int
	cancel    context.CancelFunc

	releaseOnce sync.Once
}

// engineRef counts the requests still using an engine so a reload can
// close it only after they finish.
type engineRef struct {
	Assistant
	inflight sync.WaitGroup
}

// Server listens on a Unix domain socket for editor requests.
type Server struct {
	listener net.Listener
	sockPath string

	engineMu sync.RWMutex
	engine   *engineRef
	factory  func() Assistant // builds a fresh engine on reload

	mu         sync.Mutex
	sessions   *ttlcache.Cache[string, *session]
	sessionTTL time.Duration
	watcher    *configWatcher
	closeOnce  sync.Once
}

// NewServer creates a new IPC server bound to the given socket path.
func NewServer(sockPath string) (*Server, error) {
	factory := func() Assistant { return generate.NewEngine() }
	srv, err := NewServerWithAssistant(sockPath, factory())
	if err != nil {
		return nil, err
	}
	srv.factory = factory
	return srv, nil
}

// NewServerWithAssistant creates a new IPC server with a custom Assistant.
func NewServerWithAssistant(sockPath string, assistant Assistant) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	sessions := ttlcache.New[string, *session]()
	sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *session]) {
		slog.Debug("session released", "session", item.Key(), "expired", reason == ttlcache.EvictionReasonExpired)
		item.Value().release()
	})
	go sessions.Start()

	return &Server{
		listener:   listener,
		sockPath:   sockPath,
		engine:     &engineRef{Assistant: assistant},
		sessions:   sessions,
		sessionTTL: sessionIdleTTL,
	}, nil
}

// WatchConfig reloads the engine whenever the config directory changes.
func (s *Server) WatchConfig(dir string) error {
	w, err := watchConfigDir(dir, reloadDebounce, s.reloadEngine)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Serve accepts connections and handles requests.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops the server and its engine and removes the socket file. It is safe to call twice.
func (s *Server) Close() {
	s.closeOnce.Do(s.close)
}

func (s *Server) close() {
	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	for _, item := range s.sessions.Items() {
		item.Value().release()
	}
	s.sessions.DeleteAll()
	s.sessions.Stop()
	s.mu.Unlock()

	s.assistant().Close()
	s.listener.Close()
	os.Remove(s.sockPath)
}

func (s *Server) assistant() Assistant {
	s.engineMu.RLock()
	defer s.engineMu.RUnlock()
	return s.engine.Assistant
}

// acquire returns the current engine and marks it in use until release.
func (s *Server) acquire() (Assistant, func()) {
	s.engineMu.RLock()
	defer s.engineMu.RUnlock()
	ref := s.engine
	ref.inflight.Add(1)
	return ref.Assistant, ref.inflight.Done
}

// session returns the state for id, creating it on first use. Each call
// restarts the session's idle timer.
func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.sessions.Get(id); item != nil {
		return item.Value()
	}
	sess := s.newSession()
	s.sessions.Set(id, sess, s.sessionTTL)
	return sess
}

func (s *Server) newSession() *session {
	a := s.assistant()
	rec := &surface.Recorder{}
	sess := &session{
		cache:    explain.NewCache(),
		surface:  surface.NewController(rec, nil),
		recorder: rec,
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	sess.configure(a.Config(), a.Strategy())
	return sess
}

// configure applies engine settings to the session. It runs on creation
// and again after every engine reload.
func (sess *session) configure(cfg *codelet.Config, strategy sanitize.Strategy) {
	var ttl time.Duration
	if cfg.Explain.TTLMinutes > 0 {
		ttl = time.Duration(cfg.Explain.TTLMinutes) * time.Minute
	}
	limit := rate.Inf
	if cfg.Completion.MaxRate > 0 {
		limit = rate.Limit(cfg.Completion.MaxRate)
	}
	burst := cfg.Completion.Burst
	if burst < 1 {
		burst = 1
	}

	sess.cache.SetTTL(ttl)
	sess.surface.SetStrategy(strategy)
	sess.limiter.SetLimit(limit)
	sess.limiter.SetBurst(burst)
}

// release cancels in-flight work and stops the session's cache.
func (sess *session) release() {
	sess.releaseOnce.Do(func() {
		sess.mu.Lock()
		if sess.cancel != nil {
			sess.cancel()
		}
		sess.mu.Unlock()
		sess.cache.Close()
	})
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Warn("failed to read request", "error", err)
		}
		return
	}

	raw := scanner.Bytes()
	slog.Debug("request", "data", string(raw))

	// Check if this is a config request (has "action" field)
	var cfgReq codelet.ConfigRequest
	if err := json.Unmarshal(raw, &cfgReq); err == nil && cfgReq.Action != "" {
		writeJSON(conn, s.handleConfigRequest(&cfgReq))
		return
	}

	var req codelet.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("invalid request", "error", err)
		writeJSON(conn, invalidRequest(0, "malformed request: "+err.Error()))
		return
	}

	var resp *codelet.Response
	switch req.Type {
	case "", codelet.TypeComplete:
		resp = s.handleComplete(&req)
		if resp == nil {
			// Superseded by a newer request; the client has already moved on.
			return
		}
	default:
		resp = s.handleSessionRequest(&req)
	}

	resp.RequestID = req.RequestID
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	writeJSON(conn, resp)
}

// handleComplete cancels any in-flight completion for the session and
// runs a new one. It returns nil if this request was itself superseded.
func (s *Server) handleComplete(req *codelet.Request) *codelet.Response {
	a, release := s.acquire()
	defer release()

	if req.SessionID == "" {
		return a.Complete(context.Background(), req)
	}

	sess := s.session(req.SessionID)
	if !sess.limiter.Allow() {
		slog.Debug("completion throttled", "session", req.SessionID, "request_id", req.RequestID)
		return &codelet.Response{Suggestions: []string{}}
	}

	// Cancel any in-flight request for this session and create a new context.
	ctx, cancel := context.WithCancel(context.Background())
	reqID := req.RequestID
	sess.mu.Lock()
	if sess.cancel != nil {
		sess.cancel()
	}
	sess.requestID = reqID
	sess.cancel = cancel
	sess.mu.Unlock()
	defer func() {
		cancel()
		sess.mu.Lock()
		if sess.requestID == reqID {
			sess.cancel = nil
		}
		sess.mu.Unlock()
	}()

	resp := a.Complete(ctx, req)
	if ctx.Err() != nil {
		return nil
	}
	sess.surface.Present(resp.Suggestions)
	return resp
}

// handleSessionRequest serves the request types that need per-session state.
func (s *Server) handleSessionRequest(req *codelet.Request) *codelet.Response {
	if req.SessionID == "" {
		return invalidRequest(req.RequestID, "session_id is required for "+req.Type)
	}

	switch req.Type {
	case codelet.TypeExplain, codelet.TypeConsume, codelet.TypeApply, codelet.TypeDismiss,
		codelet.TypeChat, codelet.TypeReset, codelet.TypeEdit:
	case codelet.TypeClose:
		s.sessions.Delete(req.SessionID)
		return &codelet.Response{Suggestions: []string{}, OK: true}
	default:
		return invalidRequest(req.RequestID, "unknown request type: "+req.Type)
	}

	sess := s.session(req.SessionID)
	a, release := s.acquire()
	defer release()
	resp := &codelet.Response{Suggestions: []string{}}

	switch req.Type {
	case codelet.TypeExplain:
		return a.Explain(context.Background(), req, sess.cache)

	case codelet.TypeConsume:
		if ins, ok := explain.Consume(sess.cache, req.Buffer, req.CursorOffset); ok {
			resp.Insertion = &ins
			resp.OK = true
		}

	case codelet.TypeApply:
		if ins, ok := sess.surface.ApplySelected(req.Index, req.Buffer, req.CursorOffset); ok {
			resp.Insertion = &ins
			resp.OK = true
		}

	case codelet.TypeDismiss:
		sess.surface.Dismiss()
		resp.OK = true

	case codelet.TypeChat:
		return a.Chat(context.Background(), sess.conversation(a, req.Language), req)

	case codelet.TypeReset:
		resp.Archived = a.NewConversation(sess.conversation(a, req.Language))
		resp.OK = true

	case codelet.TypeEdit:
		sess.cache.Shift(req.CursorOffset, req.Delta)
		resp.OK = true
	}
	return resp
}

// conversation returns the session's chat, starting one on first use.
func (sess *session) conversation(a Assistant, language string) *conversation.Session {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.conv == nil {
		sess.conv = a.BeginChat(language)
	}
	return sess.conv
}

func (s *Server) handleConfigRequest(req *codelet.ConfigRequest) *codelet.ConfigResponse {
	var resp codelet.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := codelet.LoadConfig()
		if err != nil {
			resp.Error = &codelet.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Config = maskSecrets(cfg)
		}

	case "reload":
		// Respond immediately; reload engine in the background.
		go s.reloadEngine()
		if cfg, err := codelet.LoadConfig(); err == nil {
			resp.Config = maskSecrets(cfg)
		}

	case "defaults":
		resp.Config = codelet.DefaultConfig()

	case "default_prompt":
		resp.Prompt = generate.DefaultPrompt(generate.PromptCompletion)

	case "validate":
		cfg, err := codelet.LoadConfig()
		if err != nil {
			resp.Error = &codelet.Error{
				Code:    "config_error",
				Message: err.Error(),
			}
		} else {
			resp.Warnings = codelet.ValidateConfig(cfg)
		}

	default:
		resp.Error = &codelet.Error{
			Code:    "unknown_action",
			Message: "unknown config action: " + req.Action,
		}
	}
	return &resp
}

// maskSecrets hides the API key before config leaves the daemon.
func maskSecrets(cfg *codelet.Config) *codelet.Config {
	out := *cfg
	if out.Generation.APIKey != "" {
		out.Generation.APIKey = "***"
	}
	return &out
}

func (s *Server) reloadEngine() {
	if s.factory == nil {
		slog.Debug("engine reload skipped, no factory")
		return
	}
	next := s.factory()

	s.engineMu.Lock()
	prev := s.engine
	s.engine = &engineRef{Assistant: next}
	s.engineMu.Unlock()

	cfg, strategy := next.Config(), next.Strategy()
	s.mu.Lock()
	for _, item := range s.sessions.Items() {
		item.Value().configure(cfg, strategy)
	}
	s.mu.Unlock()

	// Requests that started on prev keep it until they return.
	prev.inflight.Wait()
	prev.Close()
	slog.Info("engine reloaded")
}

func invalidRequest(requestID int, msg string) *codelet.Response {
	return &codelet.Response{
		RequestID:   requestID,
		Suggestions: []string{},
		Error:       &codelet.Error{Code: "invalid_request", Message: msg},
	}
}

func writeJSON(conn net.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
