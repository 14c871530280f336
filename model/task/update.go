package task

// UpdateType classifies a change published for a task
type UpdateType string

const (
	UpdateStatus   UpdateType = "status"
	UpdateProgress UpdateType = "progress"
	UpdateLog      UpdateType = "log"
)

// Update describes one observable change to a record.
type Update struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Type     UpdateType `json:"type"`
	Status   Status     `json:"status"`
	Progress float64    `json:"progress,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// NewUpdate creates an update describing the record's current state.
func (r *Record) NewUpdate(updateType UpdateType, message string) *Update {
	ret := &Update{ID: r.ID, Kind: r.Kind, Type: updateType, Status: r.Status, Message: message}
	if updateType == UpdateProgress && len(r.ProgressEvents) > 0 {
		last := r.ProgressEvents[len(r.ProgressEvents)-1]
		ret.Progress = last.Progress
		ret.Message = last.Message
	}
	if updateType == UpdateStatus && r.Status == StatusFailed {
		ret.Message = r.Error
	}
	return ret
}
