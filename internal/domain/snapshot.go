package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Snapshot is the complete, self-contained game state at a point in time.
// A snapshot is replaced as a whole; it is never mutated after publication.
type Snapshot struct {
	// Generation increases by one on every committed replacement.
	Generation uint64 `json:"generation"`

	Player        Player         `json:"player"`
	Rivals        []Rival        `json:"rivals"`
	Tasks         []Task         `json:"tasks"`
	Achievements  []Achievement  `json:"achievements"`
	Notifications []Notification `json:"notifications"`

	Streak          int  `json:"streak"`
	LastPlayedDate  Date `json:"last_played_date"`
	LastSummaryDate Date `json:"last_summary_date"`
	// LastActiveDate is the date of the last successful task completion.
	LastActiveDate Date `json:"last_active_date,omitempty"`

	// LastSimulatedAt is the instant up to which rival activity has been
	// sampled. It only ever advances by whole simulation units.
	LastSimulatedAt time.Time `json:"last_simulated_at"`

	LastCompletedTaskAt *time.Time `json:"last_completed_task_at,omitempty"`
}

// Clone returns a deep copy that shares no slices or pointers with s.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Rivals = append([]Rival(nil), s.Rivals...)
	c.Achievements = append([]Achievement(nil), s.Achievements...)
	c.Notifications = append([]Notification(nil), s.Notifications...)
	c.Tasks = make([]Task, len(s.Tasks))
	for i, t := range s.Tasks {
		if t.StartTime != nil {
			st := *t.StartTime
			t.StartTime = &st
		}
		c.Tasks[i] = t
	}
	if s.LastCompletedTaskAt != nil {
		at := *s.LastCompletedTaskAt
		c.LastCompletedTaskAt = &at
	}
	return c
}

// TaskIndex returns the position of the task with id, or -1.
func (s Snapshot) TaskIndex(id string) int {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// RivalByID returns the rival with id.
func (s Snapshot) RivalByID(id string) (Rival, bool) {
	for _, r := range s.Rivals {
		if r.ID == id {
			return r, true
		}
	}
	return Rival{}, false
}

// AllTasksCompleted reports whether there is at least one task and every
// task is completed.
func (s Snapshot) AllTasksCompleted() bool {
	if len(s.Tasks) == 0 {
		return false
	}
	for _, t := range s.Tasks {
		if !t.Completed {
			return false
		}
	}
	return true
}

// AnyTaskCompleted reports whether at least one task is completed.
func (s Snapshot) AnyTaskCompleted() bool {
	for _, t := range s.Tasks {
		if t.Completed {
			return true
		}
	}
	return false
}

// UnreadCount returns the number of unread notifications.
func (s Snapshot) UnreadCount() int {
	n := 0
	for _, note := range s.Notifications {
		if !note.Read {
			n++
		}
	}
	return n
}

// SameContent reports whether a and b encode identically, ignoring
// Generation. Encoding is the comparison so that "changed" means exactly
// "would persist different bytes".
func SameContent(a, b Snapshot) bool {
	a.Generation, b.Generation = 0, 0
	ea, err := json.Marshal(a)
	if err != nil {
		return false
	}
	eb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}
