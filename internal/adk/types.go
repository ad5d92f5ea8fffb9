package adk

import "encoding/json"

// Content is a message exchanged with the agent: a role plus ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one segment of a Content. Exactly one of the fields is normally set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall describes a tool invocation requested by the model.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries the result of a tool invocation back to the model.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// UserMessage builds the single-text-part user message sent to the run endpoint.
func UserMessage(text string) Content {
	return Content{
		Role:  "user",
		Parts: []Part{{Text: text}},
	}
}

// RunRequest is the body of POST /run.
type RunRequest struct {
	AppName    string  `json:"app_name"`
	UserID     string  `json:"user_id"`
	SessionID  string  `json:"session_id"`
	NewMessage Content `json:"new_message"`
	Streaming  bool    `json:"streaming"`
}

// Event is one step of agent execution, as returned by the run endpoint and
// listed in a session.
//
// Raw holds the complete JSON object received from the service. It is what
// MarshalJSON emits, so fields this package does not model survive a round
// trip to the inspector unchanged.
type Event struct {
	ID           string   `json:"id,omitempty"`
	Author       string   `json:"author,omitempty"`
	InvocationID string   `json:"invocationId,omitempty"`
	Timestamp    float64  `json:"timestamp,omitempty"`
	Content      *Content `json:"content,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the modelled fields and keeps a copy of the input.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Event(p)
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits Raw when present, the modelled fields otherwise.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain Event
	return json.Marshal(plain(e))
}

// FirstPart returns the first content part of the event, or nil.
func (e *Event) FirstPart() *Part {
	if e.Content == nil || len(e.Content.Parts) == 0 {
		return nil
	}
	return &e.Content.Parts[0]
}

// Session is the server-side conversation state returned by the session endpoint.
type Session struct {
	ID             string         `json:"id"`
	AppName        string         `json:"appName,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	State          map[string]any `json:"state,omitempty"`
	Events         []Event        `json:"events"`
	LastUpdateTime float64        `json:"lastUpdateTime,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the modelled fields and keeps a copy of the input.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Session(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits Raw when present, the modelled fields otherwise.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain Session
	return json.Marshal(plain(s))
}

// Trace is the debug telemetry of a single event (span attributes such as
// the LLM request and response).
type Trace map[string]any

// Graph is the structural representation of execution for a single event.
type Graph map[string]any
