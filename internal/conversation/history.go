// Package conversation turns transcribed questions into spoken answers.
//
// A [Pipeline] pairs each question with the newest camera frame, asks a
// multimodal model for an answer with the running [History] as context, and
// hands the answer to a [Speaker]. A [Worker] feeds the pipeline from a
// single-consumer queue so that answers are produced one at a time and in the
// order the questions were asked.
package conversation

import (
	"sync"

	"github.com/MrWong99/oculus/pkg/provider/llm"
)

// Turn is one entry of the conversation history. Turns are never modified
// once appended.
type Turn struct {
	// Role is [llm.RoleUser] or [llm.RoleAssistant].
	Role string

	// Text is the transcribed question or the model's answer. Images sent
	// with a question are not kept.
	Text string
}

// History is the ordered, unbounded record of answered questions. Entries
// are only ever added as (question, answer) pairs, so the history always
// alternates user and assistant turns.
//
// All methods are safe for concurrent use.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// AppendPair appends the question and its answer atomically.
func (h *History) AppendPair(question, answer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns,
		Turn{Role: llm.RoleUser, Text: question},
		Turn{Role: llm.RoleAssistant, Text: answer},
	)
}

// Turns returns a copy of the history in chronological order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Messages returns the history as model messages, oldest first.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	msgs := make([]llm.Message, len(h.turns))
	for i, t := range h.turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Text}
	}
	return msgs
}
