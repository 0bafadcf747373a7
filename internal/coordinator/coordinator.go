// Package coordinator is the single long-lived routing service: the
// only holder of the credential store, the upstream client, the audit
// runner and page access. All inter-context traffic dispatches through
// Handle; every sender gets a structured response, whatever happens.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pagepilot/internal/audit"
	"pagepilot/internal/domain"
	"pagepilot/internal/integrations/openai"
	"pagepilot/internal/store"
	"pagepilot/internal/tabs"
)

// Version is reported by the ping operation.
const Version = "0.3.0"

// defaultSnapshotTimeout is the fixed client-side bound on page-context
// requests.
const defaultSnapshotTimeout = 8 * time.Second

// LLMClient is the upstream relay consumed by the coordinator.
// *openai.Client satisfies it.
type LLMClient interface {
	Send(ctx context.Context, in openai.SendInput) (openai.SendOutput, error)
	SetCredential(key string)
	HasCredential() bool
}

// Auditor runs page audits. *audit.Runner satisfies it.
type Auditor interface {
	Run(ctx context.Context, url string) (domain.AuditResult, error)
	Last() (domain.AuditResult, bool)
}

// Broadcaster is the fire-and-forget fan-out to all connected surfaces.
// *transport.Server satisfies it.
type Broadcaster interface {
	Broadcast(target string, typ domain.MessageType, data any)
}

// Coordinator owns all shared mutable state. Surfaces never touch the
// credential or conversation memory directly; everything goes through
// request messages.
type Coordinator struct {
	kv        store.KeyValue
	llm       LLMClient
	auditor   Auditor
	registry  *tabs.Registry
	extractor tabs.Extractor
	console   *tabs.ConsoleCapture
	bus       Broadcaster
	logger    *slog.Logger

	snapshotTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSnapshotTimeout overrides the page-context request bound.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.snapshotTimeout = d
		}
	}
}

// New creates the Coordinator. One instance is constructed at process
// start; it is reached only through the message-handling contract.
func New(kv store.KeyValue, llm LLMClient, auditor Auditor, registry *tabs.Registry,
	extractor tabs.Extractor, console *tabs.ConsoleCapture, bus Broadcaster,
	logger *slog.Logger, opts ...Option) (*Coordinator, error) {

	if kv == nil {
		return nil, errors.New("coordinator: store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("coordinator: llm client must not be nil")
	}
	if auditor == nil {
		return nil, errors.New("coordinator: auditor must not be nil")
	}
	if registry == nil {
		return nil, errors.New("coordinator: tab registry must not be nil")
	}
	if console == nil {
		return nil, errors.New("coordinator: console capture must not be nil")
	}
	if bus == nil {
		return nil, errors.New("coordinator: broadcaster must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		kv:              kv,
		llm:             llm,
		auditor:         auditor,
		registry:        registry,
		extractor:       extractor,
		console:         console,
		bus:             bus,
		logger:          logger,
		snapshotTimeout: defaultSnapshotTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Prime loads the stored credential into the upstream client, so a
// restart does not lose the configured key.
func (c *Coordinator) Prime(ctx context.Context) error {
	key, ok, err := c.kv.Get(ctx, store.KeyAPIKey)
	if err != nil {
		return fmt.Errorf("coordinator: load credential: %w", err)
	}
	if ok {
		c.llm.SetCredential(key)
	}
	return nil
}

// Handle dispatches one message. It never panics through and never
// returns an envelope without Success set; on failure the error string
// is non-empty.
func (c *Coordinator) Handle(ctx context.Context, msg domain.Message) (resp domain.Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", "type", msg.Type, "panic", r)
			resp = domain.Fail(newError(ErrorInternal, "handler_panic",
				fmt.Errorf("handling %s: %v", msg.Type, r)))
		}
	}()

	if !msg.Type.Known() {
		if msg.Type == domain.TypeChatResponse || msg.Type == domain.TypeAuditResult {
			// broadcast-only types are never valid requests
			return domain.Fail(newError(ErrorInvalidInput, "broadcast_type_as_request", nil))
		}
		return domain.Fail(newError(ErrorInvalidInput, "unknown_message_type",
			fmt.Errorf("unknown message type %q", msg.Type)))
	}

	switch msg.Type {
	case domain.TypeChatRequest:
		return c.handleChat(ctx, msg)
	case domain.TypeGetAPIKey:
		return c.handleGetAPIKey(ctx)
	case domain.TypeSetAPIKey:
		return c.handleSetAPIKey(ctx, msg)
	case domain.TypeGetTabInfo:
		return c.handleTabInfo(ctx, msg)
	case domain.TypeRunAudit:
		return c.handleRunAudit(ctx, msg)
	case domain.TypeDebugSession:
		return c.handleDebugSession(msg)
	case domain.TypeConsoleAppend:
		return c.handleConsoleAppend(msg)
	case domain.TypeGetConsoleLogs:
		return c.handleConsoleLogs(ctx, msg)
	case domain.TypeGetSettings:
		return c.handleGetSettings(ctx)
	case domain.TypeSetSettings:
		return c.handleSetSettings(ctx, msg)
	case domain.TypeTabUpdate:
		return c.handleTabUpdate(msg)
	case domain.TypePing:
		return domain.OK(domain.PingResult{Version: Version})
	default:
		// unreachable while the switch covers the Known vocabulary
		return domain.Fail(newError(ErrorInternal, "unhandled_message_type",
			fmt.Errorf("no handler for %q", msg.Type)))
	}
}

// handleChat relays a prompt upstream. The outcome is always delivered
// twice: directly to the requester and as a broadcast to the chat
// window, because the initiating surface and the visible chat window
// may be different instances.
func (c *Coordinator) handleChat(ctx context.Context, msg domain.Message) domain.Response {
	var p domain.ChatRequestPayload
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_chat_payload", err))
	}
	if strings.TrimSpace(p.Message) == "" {
		return domain.Fail(newError(ErrorInvalidInput, "empty_message", nil))
	}

	if !c.llm.HasCredential() {
		err := newError(ErrorConfiguration, "missing_api_key", openai.ErrNoCredential)
		c.broadcastChat(domain.ChatResultPayload{ConversationID: p.ConversationID, Error: err.Error()})
		return domain.Fail(err)
	}

	out, err := c.llm.Send(ctx, openai.SendInput{
		Message:        p.Message,
		ConversationID: p.ConversationID,
		Context:        p.Context,
	})
	if err != nil {
		sendErr := newError(ErrorUpstream, "chat_request_failed", err)
		c.broadcastChat(domain.ChatResultPayload{ConversationID: p.ConversationID, Error: sendErr.Error()})
		return domain.Fail(sendErr)
	}

	result := domain.ChatResultPayload{
		ConversationID: p.ConversationID,
		Content:        out.Content,
		Model:          out.Model,
		Usage:          &out.Usage,
	}
	c.broadcastChat(result)
	return domain.OK(result)
}

func (c *Coordinator) broadcastChat(p domain.ChatResultPayload) {
	c.bus.Broadcast(domain.TargetChatWindow, domain.TypeChatResponse, p)
}

func (c *Coordinator) handleGetAPIKey(ctx context.Context) domain.Response {
	key, _, err := c.kv.Get(ctx, store.KeyAPIKey)
	if err != nil {
		return domain.Fail(newError(ErrorInternal, "storage_read_failed", err))
	}
	return domain.OK(key)
}

func (c *Coordinator) handleSetAPIKey(ctx context.Context, msg domain.Message) domain.Response {
	var p domain.SetAPIKeyPayload
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_api_key_payload", err))
	}
	key := strings.TrimSpace(p.APIKey)
	if key == "" {
		return domain.Fail(newError(ErrorInvalidInput, "empty_api_key", nil))
	}
	if err := c.kv.Set(ctx, store.KeyAPIKey, key); err != nil {
		return domain.Fail(newError(ErrorInternal, "storage_write_failed", err))
	}
	// the client mirrors every credential change
	c.llm.SetCredential(key)
	return domain.OK(nil)
}

// handleTabInfo resolves the current web page and optionally bundles
// extracted content and captured console logs. Content and logs are
// independent features combinable in one request.
func (c *Coordinator) handleTabInfo(ctx context.Context, msg domain.Message) domain.Response {
	var p domain.TabInfoPayload
	if len(msg.Payload) > 0 {
		if err := msg.DecodePayload(&p); err != nil {
			return domain.Fail(newError(ErrorInvalidInput, "bad_tab_info_payload", err))
		}
	}

	tab, err := tabs.Resolve(c.registry.List())
	if err != nil {
		return domain.Fail(newError(ErrorEnvironment, "no_web_page", err))
	}

	result := domain.TabInfoResult{Tab: tab}
	if p.IncludeContent {
		if c.extractor == nil {
			return domain.Fail(newError(ErrorEnvironment, "extractor_unavailable", nil))
		}
		snapCtx, cancel := context.WithTimeout(ctx, c.snapshotTimeout)
		snap, snapErr := c.extractor.Snapshot(snapCtx, tab)
		cancel()
		if snapErr != nil {
			return domain.Fail(newError(ErrorEnvironment, "snapshot_failed", snapErr))
		}
		result.Snapshot = snap
	}
	if p.IncludeLogs {
		result.Logs = c.console.Logs(tab.ID)
	}
	return domain.OK(result)
}

// handleRunAudit delegates to the runner; a live-path failure already
// degrades to a mock inside it, so the caller always gets a well-formed
// result. The result is broadcast in addition to the direct response.
func (c *Coordinator) handleRunAudit(ctx context.Context, msg domain.Message) domain.Response {
	var p domain.RunAuditPayload
	if len(msg.Payload) > 0 {
		if err := msg.DecodePayload(&p); err != nil {
			return domain.Fail(newError(ErrorInvalidInput, "bad_audit_payload", err))
		}
	}

	if p.Cached {
		last, ok := c.auditor.Last()
		if !ok {
			return domain.Fail(newError(ErrorEnvironment, "no_cached_audit", nil))
		}
		return domain.OK(last)
	}

	result, err := c.auditor.Run(ctx, p.URL)
	if err != nil {
		code := ErrorEnvironment
		if errors.Is(err, audit.ErrAuditInFlight) {
			code = ErrorInvalidInput
		}
		return domain.Fail(newError(code, "audit_failed", err))
	}

	c.bus.Broadcast(domain.TargetChatWindow, domain.TypeAuditResult, result)
	return domain.OK(result)
}

func (c *Coordinator) handleDebugSession(msg domain.Message) domain.Response {
	var p domain.DebugSessionPayload
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_debug_payload", err))
	}
	if p.TabID == 0 {
		return domain.Fail(newError(ErrorInvalidInput, "missing_tab_id", nil))
	}
	c.console.SetEnabled(p.TabID, p.Enable)
	c.logger.Debug("debug session toggled", "tab", p.TabID, "enable", p.Enable, "capture", c.console)
	return domain.OK(nil)
}

// handleConsoleAppend ingests one console record relayed by a page
// context, the same announcement path TAB_UPDATED uses. The capture
// service drops entries for tabs without an enabled session.
func (c *Coordinator) handleConsoleAppend(msg domain.Message) domain.Response {
	var p domain.ConsoleAppendPayload
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_console_append_payload", err))
	}
	if p.TabID == 0 {
		return domain.Fail(newError(ErrorInvalidInput, "missing_tab_id", nil))
	}
	c.console.Append(p.TabID, p.Level, p.Text)
	return domain.OK(nil)
}

func (c *Coordinator) handleConsoleLogs(ctx context.Context, msg domain.Message) domain.Response {
	var p domain.ConsoleLogsPayload
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_console_payload", err))
	}
	if p.TabID == 0 {
		return domain.Fail(newError(ErrorInvalidInput, "missing_tab_id", nil))
	}

	result := domain.ConsoleLogsResult{Logs: c.console.Logs(p.TabID)}
	if p.IncludeAnalysis {
		tab, ok := c.registry.Get(p.TabID)
		if !ok {
			return domain.Fail(newError(ErrorEnvironment, "unknown_tab", nil))
		}
		if c.extractor == nil {
			return domain.Fail(newError(ErrorEnvironment, "extractor_unavailable", nil))
		}
		analyzeCtx, cancel := context.WithTimeout(ctx, c.snapshotTimeout)
		analysis, err := c.extractor.Analyze(analyzeCtx, tab)
		cancel()
		if err != nil {
			return domain.Fail(newError(ErrorEnvironment, "analysis_failed", err))
		}
		result.Analysis = analysis
	}
	return domain.OK(result)
}

func (c *Coordinator) handleGetSettings(ctx context.Context) domain.Response {
	settings, err := store.Settings(ctx, c.kv)
	if err != nil {
		return domain.Fail(newError(ErrorInternal, "storage_read_failed", err))
	}
	return domain.OK(settings)
}

func (c *Coordinator) handleSetSettings(ctx context.Context, msg domain.Message) domain.Response {
	var p domain.Settings
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_settings_payload", err))
	}
	if err := store.SaveSettings(ctx, c.kv, p); err != nil {
		return domain.Fail(newError(ErrorInternal, "storage_write_failed", err))
	}
	return domain.OK(nil)
}

func (c *Coordinator) handleTabUpdate(msg domain.Message) domain.Response {
	var p domain.TabUpdatePayload
	if err := msg.DecodePayload(&p); err != nil {
		return domain.Fail(newError(ErrorInvalidInput, "bad_tab_payload", err))
	}

	switch {
	case p.Removed:
		c.registry.Remove(p.Tab.ID)
		c.console.Drop(p.Tab.ID)
	case p.Touched:
		c.registry.Touch(p.Tab.ID)
	default:
		c.registry.Upsert(p.Tab)
	}
	return domain.OK(nil)
}

// ResolveCurrentURL is the audit runner's URL resolver: the current web
// page per the tab policy.
func (c *Coordinator) ResolveCurrentURL() (string, error) {
	tab, err := tabs.Resolve(c.registry.List())
	if err != nil {
		return "", err
	}
	return tab.URL, nil
}
