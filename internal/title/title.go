// Package title renders the one-line summary of an event, with or without the
// acting user's name.
package title

import (
	"fmt"

	"zulipnotify/internal/event"
)

// Formatter is the default title formatter. The zero value is ready to use.
type Formatter struct{}

func New() Formatter { return Formatter{} }

// TitleWithAuthor names the actor, e.g. `Jane Doe created the task #12`.
// Events without an author-specific phrasing fall back to TitleWithoutAuthor.
func (Formatter) TitleWithAuthor(author, name string, d event.Data) string {
	id := int64(d.Task.ID)
	switch name {
	case event.TaskAssigneeChange:
		assignee := d.Task.AssigneeName
		if assignee == "" {
			assignee = d.Task.AssigneeUsername
		}
		if assignee == "" {
			return fmt.Sprintf("%s removed the assignee of the task #%d", author, id)
		}
		return fmt.Sprintf("%s changed the assignee of the task #%d to %s", author, id, assignee)
	case event.TaskUpdate:
		return fmt.Sprintf("%s updated the task #%d", author, id)
	case event.TaskCreate:
		return fmt.Sprintf("%s created the task #%d", author, id)
	case event.TaskClose:
		return fmt.Sprintf("%s closed the task #%d", author, id)
	case event.TaskOpen:
		return fmt.Sprintf("%s opened the task #%d", author, id)
	case event.TaskMoveColumn:
		return fmt.Sprintf("%s moved the task #%d to the column \"%s\"", author, id, d.Task.ColumnTitle)
	case event.TaskMovePosition:
		return fmt.Sprintf("%s moved the task #%d to the position %d in the column \"%s\"", author, id, int64(d.Task.Position), d.Task.ColumnTitle)
	case event.TaskMoveSwimlane:
		if d.Task.SwimlaneName == "" {
			return fmt.Sprintf("%s moved the task #%d to the first swimlane", author, id)
		}
		return fmt.Sprintf("%s moved the task #%d to the swimlane \"%s\"", author, id, d.Task.SwimlaneName)
	case event.SubtaskCreate:
		return fmt.Sprintf("%s created a subtask for the task #%d", author, id)
	case event.SubtaskUpdate:
		return fmt.Sprintf("%s updated a subtask for the task #%d", author, id)
	case event.SubtaskDelete:
		return fmt.Sprintf("%s removed a subtask for the task #%d", author, id)
	case event.CommentCreate:
		return fmt.Sprintf("%s commented on the task #%d", author, id)
	case event.CommentUpdate:
		return fmt.Sprintf("%s updated a comment on the task #%d", author, id)
	case event.CommentDelete:
		return fmt.Sprintf("%s removed a comment on the task #%d", author, id)
	case event.TaskFileCreate:
		return fmt.Sprintf("%s attached a file to the task #%d", author, id)
	case event.TaskUserMention:
		return fmt.Sprintf("%s mentioned you in the task #%d", author, id)
	case event.CommentUserMention:
		return fmt.Sprintf("%s mentioned you in a comment on the task #%d", author, id)
	default:
		return Formatter{}.TitleWithoutAuthor(name, d)
	}
}

// TitleWithoutAuthor describes the event without attribution.
func (Formatter) TitleWithoutAuthor(name string, d event.Data) string {
	id := int64(d.Task.ID)
	switch name {
	case event.TaskFileCreate:
		file := ""
		if d.File != nil {
			file = d.File.Name
		}
		return fmt.Sprintf("New attachment on task #%d: %s", id, file)
	case event.CommentCreate:
		return fmt.Sprintf("New comment on task #%d", id)
	case event.CommentUpdate:
		return fmt.Sprintf("Comment updated on task #%d", id)
	case event.CommentDelete:
		return fmt.Sprintf("Comment removed on task #%d", id)
	case event.SubtaskCreate:
		return fmt.Sprintf("New subtask on task #%d", id)
	case event.SubtaskUpdate:
		return fmt.Sprintf("Subtask updated on task #%d", id)
	case event.SubtaskDelete:
		return fmt.Sprintf("Subtask removed on task #%d", id)
	case event.TaskCreate:
		return fmt.Sprintf("New task #%d: %s", id, d.Task.Title)
	case event.TaskUpdate:
		return fmt.Sprintf("Task updated #%d", id)
	case event.TaskClose:
		return fmt.Sprintf("Task #%d closed", id)
	case event.TaskOpen:
		return fmt.Sprintf("Task #%d opened", id)
	case event.TaskMoveColumn:
		return fmt.Sprintf("Column changed for task #%d", id)
	case event.TaskMovePosition:
		return fmt.Sprintf("New position for task #%d", id)
	case event.TaskMoveSwimlane:
		return fmt.Sprintf("Swimlane changed for task #%d", id)
	case event.TaskAssigneeChange:
		return fmt.Sprintf("Assignee changed on task #%d", id)
	case event.TaskOverdue:
		return fmt.Sprintf("Task #%d is overdue", id)
	case event.TaskUserMention:
		return fmt.Sprintf("You were mentioned in the task #%d", id)
	case event.CommentUserMention:
		return fmt.Sprintf("You were mentioned in a comment on the task #%d", id)
	default:
		return "Notification"
	}
}
