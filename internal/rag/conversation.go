package rag

import (
	"sync"

	"github.com/matsen/paperchat/internal/paper"
)

// Conversation is the state of one chat session. It is owned by the caller
// and passed to each Loop operation; the Loop keeps no conversation state.
//
// A Conversation is safe for concurrent use, but only one Query or Chat may
// be in flight at a time.
type Conversation struct {
	mu     sync.Mutex
	turns  []Turn
	filter paper.Filter
	state  State
	epoch  uint64 // bumped by Reset so in-flight results are discarded
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// TurnCount returns the number of turns.
func (c *Conversation) TurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// ActiveFilter returns a copy of the filter applied to future retrievals.
func (c *Conversation) ActiveFilter() paper.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Clone()
}

// SetFilter replaces the active filter. An empty filter clears it.
func (c *Conversation) SetFilter(f paper.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f.Normalize()
}

// Turns returns a deep copy of the turns in chronological order.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneTurns(c.turns)
}

// State reports whether a request is in flight.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset clears all turns and the active filter. A request in flight when
// Reset is called still returns its answer, but the exchange is not recorded.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.filter = paper.Filter{}
	c.epoch++
}

// snapshot is the conversation as seen by one in-flight request.
type snapshot struct {
	turns  []Turn
	filter paper.Filter
	epoch  uint64
}

func (c *Conversation) begin() (snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == AwaitingBackend {
		return snapshot{}, ErrConversationBusy
	}
	c.state = AwaitingBackend
	return snapshot{
		turns:  cloneTurns(c.turns),
		filter: c.filter.Clone(),
		epoch:  c.epoch,
	}, nil
}

// abort returns to Idle without touching turns.
func (c *Conversation) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
}

// commit appends one exchange and returns to Idle. The exchange is dropped
// when the conversation was reset after begin.
func (c *Conversation) commit(snap snapshot, user, assistant Turn, filter *paper.Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	if c.epoch != snap.epoch {
		return
	}
	c.turns = append(c.turns, user, assistant)
	if filter != nil {
		c.filter = filter.Clone()
	}
}

func (c *Conversation) exportRecord(model string) *ExportRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := cloneTurns(c.turns)
	if turns == nil {
		turns = []Turn{}
	}
	return &ExportRecord{
		Model:        model,
		TurnCount:    len(turns),
		ActiveFilter: c.filter.Clone(),
		Turns:        turns,
	}
}
