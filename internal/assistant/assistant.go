// Package assistant holds the conversation with the language model that turns
// user requests into plan instructions.
package assistant

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"strconv"
	"sync"
	"text/template"
	"time"

	"meal-plan-assistant/internal/llm"
	"meal-plan-assistant/internal/planner"
	"meal-plan-assistant/internal/shared"
)

//go:embed prompt.md
var systemPrompt string

var promptTemplate = template.Must(template.New("assistant").Parse(systemPrompt))

// DefaultHistoryLimit is the number of messages kept per owner.
const DefaultHistoryLimit = 10

const agentName = "Assistant"

// MetricsRecorder receives one record per model call.
type MetricsRecorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta) error
}

// Snapshot is the context the model sees along with the user text.
type Snapshot struct {
	Plan    planner.DayPlan
	Options []string
}

// Reply is the raw model output for one turn.
type Reply struct {
	Text string
	Meta shared.AgentMeta
}

type promptItem struct {
	Index    int
	Name     string
	Quantity string
	Unit     string
}

type promptMeal struct {
	Name  string
	Items []promptItem
}

type promptOption struct {
	Index int
	Label string
}

type promptData struct {
	Date    string
	Meals   []promptMeal
	Options []promptOption
}

// Assistant keeps a bounded history per owner. Safe for concurrent use.
type Assistant struct {
	chat    llm.ChatGenerator
	metrics MetricsRecorder
	limit   int

	mu      sync.Mutex
	history map[string][]llm.Message
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithMetrics records every call.
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Assistant) { a.metrics = m }
}

// WithHistoryLimit overrides the number of retained messages.
func WithHistoryLimit(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.limit = n
		}
	}
}

// New creates an Assistant over a chat model.
func New(chat llm.ChatGenerator, opts ...Option) *Assistant {
	a := &Assistant{
		chat:    chat,
		limit:   DefaultHistoryLimit,
		history: make(map[string][]llm.Message),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Converse sends the user's text with the current plan as context and returns
// the model's raw answer. The turn is added to the history only on success.
func (a *Assistant) Converse(ctx context.Context, owner, text string, snap Snapshot) (Reply, error) {
	start := time.Now()

	system, err := BuildPrompt(snap)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to build prompt: %w", err)
	}

	a.mu.Lock()
	history := append(append([]llm.Message(nil), a.history[owner]...), llm.Message{Role: llm.RoleUser, Content: text})
	a.mu.Unlock()

	resp, err := a.chat.Chat(ctx, system, history)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	meta := shared.AgentMeta{AgentName: agentName, Usage: resp.Usage, Latency: time.Since(start)}
	if a.metrics != nil {
		if err := a.metrics.RecordMeta(ctx, meta); err != nil {
			log.Printf("assistant: failed to record metrics: %v", err)
		}
	}

	a.mu.Lock()
	turns := append(a.history[owner],
		llm.Message{Role: llm.RoleUser, Content: text},
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
	)
	if len(turns) > a.limit {
		turns = append([]llm.Message(nil), turns[len(turns)-a.limit:]...)
	}
	a.history[owner] = turns
	a.mu.Unlock()

	return Reply{Text: resp.Content, Meta: meta}, nil
}

// History returns a copy of the owner's retained messages.
func (a *Assistant) History(owner string) []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Message(nil), a.history[owner]...)
}

// Reset forgets the owner's conversation.
func (a *Assistant) Reset(owner string) {
	a.mu.Lock()
	delete(a.history, owner)
	a.mu.Unlock()
}

// BuildPrompt renders the system prompt for a plan snapshot.
func BuildPrompt(snap Snapshot) (string, error) {
	data := promptData{Date: snap.Plan.Date}
	for _, mt := range planner.MealTypes {
		meal := promptMeal{Name: string(mt)}
		for i, item := range snap.Plan.Meal(mt) {
			pi := promptItem{Index: i + 1, Name: item.Food.Name, Unit: item.Unit}
			if item.Quantity > 0 {
				pi.Quantity = strconv.FormatFloat(item.Quantity, 'f', -1, 64)
			}
			meal.Items = append(meal.Items, pi)
		}
		data.Meals = append(data.Meals, meal)
	}
	for i, label := range snap.Options {
		data.Options = append(data.Options, promptOption{Index: i + 1, Label: label})
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
