package ir

// Record is a stored instance of a schema.
type Record struct {
	ID     string `json:"id"`
	Schema string `json:"schema"`
	Fields Object `json:"fields"`
	Seq    int64  `json:"seq"` // Logical clock of the last write
}

// Get returns a field value by dotted path.
func (r Record) Get(path string) (Value, bool) {
	if r.Fields == nil {
		return nil, false
	}
	return r.Fields.Get(path)
}

// IsZero reports whether the record carries no identity.
func (r Record) IsZero() bool {
	return r.ID == "" && r.Schema == ""
}

// EventKind is the mutation kind an event describes.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// ValidEventKinds lists accepted event kinds.
var ValidEventKinds = map[EventKind]bool{
	EventCreated:  true,
	EventModified: true,
	EventDeleted:  true,
}

// Event describes one mutation. Object is the snapshot after the change
// (the last known state for deletions). Modified is empty for created and
// deleted events.
type Event struct {
	Schema   string    `json:"schema"`
	Kind     EventKind `json:"kind"`
	Object   Record    `json:"object"`
	Modified []string  `json:"modified,omitempty"`
	Parent   *Record   `json:"parent,omitempty"`
	Seq      int64     `json:"seq"`

	// Chain and Depth are assigned by the cascade controller.
	Chain string `json:"chain,omitempty"`
	Depth int    `json:"depth"`
}

// Write is a field update an action asks the engine to apply.
type Write struct {
	Target Record `json:"target"`
	Fields Object `json:"fields"`
}
