package shared

import (
	"time"
)

// TokenUsage is the token count reported by a model for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// Empty reports whether the provider returned no usage at all.
func (u TokenUsage) Empty() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// AgentMeta describes one assistant, enricher or indexer run for the
// metrics store.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}
