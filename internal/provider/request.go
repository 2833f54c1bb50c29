// Package provider wraps upstream LLM backends behind a uniform chat
// completion interface using langchaingo.
package provider

import (
	"fmt"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the accepted values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat is the OpenAI-style response shape hint,
// e.g. {"type": "json_object"}.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request is a generic chat completion request. Immutable once constructed;
// the broker copies it before widening timeouts for deferred execution.
type Request struct {
	Messages          []Message       `json:"messages"`
	Model             string          `json:"model,omitempty"`
	UseReasoningModel bool            `json:"use_reasoning_model,omitempty"`
	TimeoutSeconds    int             `json:"timeout,omitempty"`
	MaxTokens         int             `json:"max_tokens,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	ResponseFormat    *ResponseFormat `json:"response_format,omitempty"`
}

// WantsJSONObject reports whether the caller asked for a strict JSON object
// response.
func (r Request) WantsJSONObject() bool {
	return r.ResponseFormat != nil && r.ResponseFormat.Type == "json_object"
}

// Timeout returns the request timeout, falling back to def when unset.
func (r Request) Timeout(def time.Duration) time.Duration {
	if r.TimeoutSeconds > 0 {
		return time.Duration(r.TimeoutSeconds) * time.Second
	}
	return def
}

// Validate checks structural soundness of a request. Deferred payloads pass
// through serialization, so workers re-validate before execution.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages")
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

// Result is the outcome of one completion attempt. Failure is carried in the
// Err field; adapters never return Go errors for upstream failures.
type Result struct {
	Content  string `json:"content,omitempty"`
	Err      string `json:"error,omitempty"`
	Provider string `json:"provider_name,omitempty"`
	Model    string `json:"model_used,omitempty"`
}

// OK reports whether the attempt produced usable content. A result carrying
// both content and an error counts as failed.
func (r Result) OK() bool {
	return r.Err == "" && r.Content != ""
}
