// Package event models the task-application events this service turns into
// chat messages.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event names emitted by the task application.
const (
	TaskCreate         = "task.create"
	TaskUpdate         = "task.update"
	TaskClose          = "task.close"
	TaskOpen           = "task.open"
	TaskMoveColumn     = "task.move.column"
	TaskMovePosition   = "task.move.position"
	TaskMoveSwimlane   = "task.move.swimlane"
	TaskAssigneeChange = "task.assignee_change"
	TaskOverdue        = "task.overdue"
	TaskUserMention    = "task.user.mention"
	TaskFileCreate     = "task.file.create"

	CommentCreate      = "comment.create"
	CommentUpdate      = "comment.update"
	CommentDelete      = "comment.delete"
	CommentUserMention = "comment.user.mention"

	SubtaskCreate = "subtask.create"
	SubtaskUpdate = "subtask.update"
	SubtaskDelete = "subtask.delete"
)

// ID is an integer identifier that also decodes from a JSON string, since the
// task application serializes database ids either way.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", s, err)
		}
		*id = ID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

type Task struct {
	ID               ID     `json:"id"`
	Title            string `json:"title"`
	ProjectID        ID     `json:"project_id"`
	ProjectName      string `json:"project_name,omitempty"`
	ColumnTitle      string `json:"column_title,omitempty"`
	Position         ID     `json:"position,omitempty"`
	SwimlaneName     string `json:"swimlane_name,omitempty"`
	AssigneeName     string `json:"assignee_name,omitempty"`
	AssigneeUsername string `json:"assignee_username,omitempty"`
}

type Comment struct {
	ID      ID     `json:"id"`
	Comment string `json:"comment"`
}

type Subtask struct {
	ID    ID     `json:"id"`
	Title string `json:"title"`
}

type File struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Data is the event payload. Task is always present; Tasks only for the
// overdue aggregate event.
type Data struct {
	Task    Task           `json:"task"`
	Tasks   []Task         `json:"tasks,omitempty"`
	Comment *Comment       `json:"comment,omitempty"`
	Subtask *Subtask       `json:"subtask,omitempty"`
	File    *File          `json:"file,omitempty"`
	Changes map[string]any `json:"changes,omitempty"`
}

// WithTask returns a copy of d whose Task is t.
func (d Data) WithTask(t Task) Data {
	d.Task = t
	return d
}
