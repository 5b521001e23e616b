package router

import "fmt"

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation, provider-agnostic.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Request is a provider-agnostic generation request. Adapters
// transform it to each vendor's wire format.
type Request struct {
	// Model is the model identifier (e.g. "gpt-4o", "claude-sonnet-4")
	Model string `json:"model"`

	// Messages is the conversation history, oldest first
	Messages []Message `json:"messages"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens caps the generated completion length
	MaxTokens int `json:"max_tokens,omitempty"`

	// UserID is carried for audit, not sent upstream
	UserID string `json:"-"`

	// Metadata carries gateway annotations, not sent upstream
	Metadata map[string]string `json:"-"`
}

// Validate checks the request before it reaches any provider.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unknown role %q", m.Role),
			}
		}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return &ValidationError{Field: "temperature", Message: "must be between 0.0 and 2.0"}
	}
	if r.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Message: "must be positive"}
	}
	return nil
}

// Usage tracks token consumption for a generation.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens generated
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is prompt plus completion
	TotalTokens int `json:"total_tokens"`
}

// Response is a normalized generation response.
type Response struct {
	// ID is the provider's response identifier
	ID string `json:"id"`

	// Model is the model that actually served the request
	Model string `json:"model"`

	// Provider is the adapter that served the request
	Provider string `json:"provider"`

	// Content is the generated text
	Content string `json:"content"`

	// FinishReason indicates why generation stopped (stop, length, ...)
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token consumption, when the vendor reports it
	Usage Usage `json:"usage"`

	// Created is the Unix timestamp of the response
	Created int64 `json:"created,omitempty"`

	// Metadata carries routing annotations (attempt counts, fallback)
	Metadata map[string]string `json:"metadata,omitempty"`
}
