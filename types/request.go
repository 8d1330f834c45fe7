package types

import "time"

// FunctionType identifies a registered text-processing function.
type FunctionType string

// Built-in function types
const (
	FunctionTranslate FunctionType = "translate"
	FunctionExplain   FunctionType = "explain"
	FunctionSummarize FunctionType = "summarize"
	FunctionAsk       FunctionType = "ask"
	FunctionOptimize  FunctionType = "optimize"
	FunctionCustom    FunctionType = "custom"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one unit of work entering the dispatcher.
type Request struct {
	SessionID    string       `json:"session_id"`
	FunctionType FunctionType `json:"function_type"`
	ModelID      string       `json:"model_id"`
	Text         string       `json:"text"`

	// FunctionName selects a user-defined template when
	// FunctionType is FunctionCustom.
	FunctionName string `json:"function_name,omitempty"`

	// Options are free-form per-function parameters, e.g. the
	// target language for translations.
	Options map[string]string `json:"options,omitempty"`
}

// Fingerprint identifies a request for caching and deduplication.
// Two requests with the same fingerprint are semantically identical.
type Fingerprint string

// StreamChunk is one element of the raw upstream event sequence:
// a payload fragment plus an end-of-stream flag. Chunks arrive in
// transport order and are never reordered.
type StreamChunk struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Err     error  `json:"-"`
}

// Result is the terminal outcome of a completed request.
type Result struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Text        string      `json:"text"`
	FromCache   bool        `json:"from_cache"`
	Elapsed     time.Duration
}
