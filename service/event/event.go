package event

import "time"

// Context identifies the task an event relates to
type Context struct {
	Namespace string `json:"namespace"`
	TaskID    string `json:"taskID"`
	Kind      string `json:"kind"`
	EventType string `json:"eventType"`
}

// Event wraps data published for listeners
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

// NewEvent creates an event
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
