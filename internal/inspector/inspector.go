// Package inspector turns agent events into chat messages and builds the
// enriched session snapshot shown in the inspector panel.
package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/conversion"
	"github.com/inercia/adkinspect/internal/logging"
)

// Trace attributes that the agent service stores as JSON-encoded strings.
const (
	AttrLLMRequest  = "gcp.vertex.agent.llm_request"
	AttrLLMResponse = "gcp.vertex.agent.llm_response"
)

// TitleFunctionCalls labels assistant messages that report a tool call.
const TitleFunctionCalls = "Function calls"

// NoSessionMessage is shown when a message is sent before a session exists.
const NoSessionMessage = "Please setup the agent connection first using the Setup tab."

// ChatMessage is one entry of the chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// HTML is the sanitized rendering of Content for text replies.
	HTML string `json:"html,omitempty"`
	// Title marks metadata messages such as function calls.
	Title string `json:"title,omitempty"`
}

// UserMessage returns the chat entry for text typed by the user.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

// AssistantNotice returns a plain assistant message, used for notices.
func AssistantNotice(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// Source is the part of *adk.Client the inspector reads from.
type Source interface {
	GetEvents(ctx context.Context) (*adk.Session, error)
	GetTrace(ctx context.Context, eventID string) (adk.Trace, error)
	GetGraph(ctx context.Context, eventID string) (adk.Graph, error)
}

// Snapshot is the session document with events enriched by "trace" and
// "graph" keys. Fields the service sends are kept as received.
type Snapshot map[string]any

// Events returns the event objects of the snapshot.
func (s Snapshot) Events() []map[string]any {
	raw, _ := s["events"].([]any)
	events := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			events = append(events, m)
		}
	}
	return events
}

// Inspector renders chat messages and builds snapshots.
type Inspector struct {
	conv   *conversion.Converter
	logger *slog.Logger
}

// Option configures the inspector.
type Option func(*Inspector)

// WithConverter sets the markdown converter used for text replies.
func WithConverter(conv *conversion.Converter) Option {
	return func(i *Inspector) {
		i.conv = conv
	}
}

// WithLogger sets the logger. Defaults to the "inspector" component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) {
		i.logger = logger
	}
}

// New creates an inspector.
func New(opts ...Option) *Inspector {
	i := &Inspector{}
	for _, opt := range opts {
		opt(i)
	}
	if i.conv == nil {
		i.conv = conversion.DefaultConverter()
	}
	if i.logger == nil {
		i.logger = logging.Inspector()
	}
	return i
}

// ChatMessages converts the events of one agent turn into assistant
// messages. Only the first part of each event is considered: text becomes a
// rendered message and a function call becomes a message naming the
// function. Events without content are skipped. The result is never nil.
func (i *Inspector) ChatMessages(events []adk.Event) []ChatMessage {
	msgs := []ChatMessage{}
	for _, e := range events {
		part := e.FirstPart()
		switch {
		case part == nil:
			continue
		case part.Text != "":
			msgs = append(msgs, ChatMessage{
				Role:    "assistant",
				Content: part.Text,
				HTML:    i.conv.ConvertToSafeHTML(part.Text),
			})
		case part.FunctionCall != nil:
			msgs = append(msgs, ChatMessage{
				Role:    "assistant",
				Content: part.FunctionCall.Name,
				Title:   TitleFunctionCalls,
			})
		}
	}
	return msgs
}

// EventsOnly returns the session snapshot without traces or graphs.
func (i *Inspector) EventsOnly(ctx context.Context, src Source) (Snapshot, error) {
	sess, err := src.GetEvents(ctx)
	if err != nil {
		return nil, err
	}
	return toSnapshot(sess)
}

// Build returns the session snapshot with each event enriched by its trace
// and, when a trace exists, its graph. A failure fetching one event's trace
// or graph is logged and leaves that event as it is.
func (i *Inspector) Build(ctx context.Context, src Source) (Snapshot, error) {
	snap, err := i.EventsOnly(ctx, src)
	if err != nil {
		return nil, err
	}

	for _, e := range snap.Events() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, _ := e["id"].(string)
		if id == "" {
			continue
		}

		trace, err := src.GetTrace(ctx, id)
		if err != nil {
			i.logger.Debug("Skipping event trace", "event_id", id, "error", err)
			continue
		}
		if len(trace) == 0 {
			continue
		}
		e["trace"] = DecodeTrace(trace, i.logger)

		graph, err := src.GetGraph(ctx, id)
		if err != nil {
			i.logger.Debug("Skipping event graph", "event_id", id, "error", err)
			continue
		}
		if len(graph) > 0 {
			e["graph"] = graph
		}
	}
	return snap, nil
}

// DecodeTrace returns a copy of trace with the LLM request and response
// attributes decoded from JSON strings into objects. The cached trace is
// left untouched; values that do not decode are kept as strings.
func DecodeTrace(trace adk.Trace, logger *slog.Logger) adk.Trace {
	out := maps.Clone(trace)
	for _, attr := range []string{AttrLLMRequest, AttrLLMResponse} {
		s, ok := out[attr].(string)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			if logger != nil {
				logger.Debug("Trace attribute is not JSON", "attribute", attr, "error", err)
			}
			continue
		}
		out[attr] = v
	}
	return out
}

func toSnapshot(sess *adk.Session) (Snapshot, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}
