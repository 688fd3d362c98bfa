package service

import (
	"github.com/Rrens/kaif-chat/internal/domain"
	"github.com/Rrens/kaif-chat/internal/responder"
)

// EntryState tags a thread entry with its persistence state
type EntryState int

const (
	// EntryPending is shown locally but has no durable record yet
	EntryPending EntryState = iota
	EntryPersisted
	// EntryRolledBack was never stored and is hidden from the thread
	EntryRolledBack
)

func (s EntryState) String() string {
	switch s {
	case EntryPending:
		return "pending"
	case EntryPersisted:
		return "persisted"
	case EntryRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

type entry struct {
	localID string
	state   EntryState
	message domain.Message
}

// ThreadMessage is a visible thread entry
type ThreadMessage struct {
	domain.Message
	LocalID string `json:"local_id,omitempty"`
	Pending bool   `json:"pending"`
}

// The reducers below never mutate their input slice.

func appendPending(entries []entry, localID string, msg domain.Message) []entry {
	out := make([]entry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, entry{localID: localID, state: EntryPending, message: msg})
}

func appendPersisted(entries []entry, localID string, rec domain.Message) []entry {
	out := make([]entry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, entry{localID: localID, state: EntryPersisted, message: rec})
}

// markPersisted swaps the local draft for the server record
func markPersisted(entries []entry, localID string, rec domain.Message) []entry {
	out := make([]entry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].localID == localID && out[i].state == EntryPending {
			out[i].state = EntryPersisted
			out[i].message = rec
		}
	}
	return out
}

func rollback(entries []entry, localID string) []entry {
	out := make([]entry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].localID == localID && out[i].state == EntryPending {
			out[i].state = EntryRolledBack
		}
	}
	return out
}

func persistedEntries(messages []domain.Message) []entry {
	out := make([]entry, len(messages))
	for i, m := range messages {
		out[i] = entry{state: EntryPersisted, message: m}
	}
	return out
}

func visible(entries []entry) []ThreadMessage {
	out := make([]ThreadMessage, 0, len(entries))
	for _, e := range entries {
		if e.state == EntryRolledBack {
			continue
		}
		out = append(out, ThreadMessage{
			Message: e.message,
			LocalID: e.localID,
			Pending: e.state == EntryPending,
		})
	}
	return out
}

// turnsBefore returns up to limit persisted entries ahead of localID, oldest
// first. Pending and rolled back entries are not conversation context.
func turnsBefore(entries []entry, localID string, limit int) []responder.Turn {
	var turns []responder.Turn
	for _, e := range entries {
		if e.localID == localID {
			break
		}
		if e.state != EntryPersisted {
			continue
		}
		turns = append(turns, responder.Turn{IsUser: e.message.IsUser, Content: e.message.Content})
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
