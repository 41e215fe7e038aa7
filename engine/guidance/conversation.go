package guidance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vimarsh-ai/vimarsh/engine/core"
	"github.com/vimarsh-ai/vimarsh/engine/store"
)

// historyTurns bounds how many prior exchanges feed the prompt.
const historyTurns = 5

// Conversation is one append-only audit record of a served exchange.
type Conversation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Question    string    `json:"question"`
	Response    string    `json:"response"`
	Citations   []string  `json:"citations,omitempty"`
	Personality string    `json:"personality"`
}

func (c *Conversation) Document() *store.Document {
	citations := make([]any, len(c.Citations))
	for i, cite := range c.Citations {
		citations[i] = cite
	}
	return &store.Document{
		ID:           c.ID,
		Type:         store.TypeConversation,
		PartitionKey: c.UserID,
		Data: map[string]any{
			"user_id":     c.UserID,
			"session_id":  c.SessionID,
			"timestamp":   c.Timestamp.UTC().Format(time.RFC3339Nano),
			"question":    c.Question,
			"response":    c.Response,
			"citations":   citations,
			"personality": c.Personality,
		},
	}
}

func conversationFromDocument(doc *store.Document) Conversation {
	c := Conversation{
		ID:          doc.ID,
		UserID:      stringField(doc.Data, "user_id"),
		SessionID:   stringField(doc.Data, "session_id"),
		Question:    stringField(doc.Data, "question"),
		Response:    stringField(doc.Data, "response"),
		Personality: stringField(doc.Data, "personality"),
	}
	if raw := stringField(doc.Data, "timestamp"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			c.Timestamp = ts
		}
	}
	if raw, ok := doc.Data["citations"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				c.Citations = append(c.Citations, s)
			}
		}
	}
	return c
}

// history returns the last turns for (user, session) formatted for the
// prompt, oldest first. A read failure degrades to no history.
func history(ctx context.Context, docs store.Store, userID, sessionID string) string {
	if sessionID == "" {
		return ""
	}
	listed, err := docs.List(ctx, store.CollectionConversations, store.Query{
		Type:         store.TypeConversation,
		PartitionKey: userID,
	})
	if err != nil {
		return ""
	}
	turns := make([]Conversation, 0, len(listed))
	for i := range listed {
		c := conversationFromDocument(&listed[i])
		if c.SessionID == sessionID {
			turns = append(turns, c)
		}
	}
	sort.Slice(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}
	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "Seeker: %s\n%s: %s\n", turn.Question, turn.Personality, turn.Response)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newConversationID() string {
	return "conv_" + core.NewID().String()
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
