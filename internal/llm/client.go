package llm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"iter"
	"strings"

	"go.opentelemetry.io/otel"
)

var llmTracer = otel.Tracer("searchagent/llm")

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a chat message with role and content
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the completion capability consumed by the search agent. Complete
// returns the whole completion, CompleteStream yields incremental text chunks
// and ends with a non-nil error when the stream fails.
type Client interface {
	Complete(ctx context.Context, messages []ChatMessage, model string) (string, error)
	CompleteStream(ctx context.Context, messages []ChatMessage, model string) iter.Seq2[string, error]
}

// System builds a system message.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User builds a user message.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// splitSystem separates system prompts from the conversational turns.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var systemPrompts []string
	turns := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case RoleSystem:
			systemPrompts = append(systemPrompts, msg.Content)
		case RoleUser, RoleAssistant:
			turns = append(turns, ChatMessage{Role: strings.ToLower(msg.Role), Content: msg.Content})
		default:
			turns = append(turns, ChatMessage{Role: RoleUser, Content: msg.Content})
		}
	}
	return strings.Join(systemPrompts, "\n\n"), turns
}

func validateMessages(messages []ChatMessage, model string) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model cannot be empty")
	}
	return nil
}

// errorSeq yields a single error.
func errorSeq(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

func telemetryFingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum[:8])
}
