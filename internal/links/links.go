// Package links builds absolute URLs into the task application.
package links

import (
	"strconv"
	"strings"
)

// TaskURL returns the absolute task view URL under base, or "" when base is empty.
//
//	TaskURL("https://tasks.example.com/", 12, 3)
//	// https://tasks.example.com/?controller=TaskViewController&action=show&task_id=12&project_id=3
func TaskURL(base string, taskID, projectID int64) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	if !strings.HasSuffix(base, "/") && !strings.HasSuffix(base, ".php") {
		base += "/"
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?controller=TaskViewController&action=show&task_id=")
	b.WriteString(strconv.FormatInt(taskID, 10))
	b.WriteString("&project_id=")
	b.WriteString(strconv.FormatInt(projectID, 10))
	return b.String()
}

// Builder resolves the base URL on every call so config reloads apply.
type Builder struct {
	base func() string
}

func NewBuilder(base func() string) *Builder {
	return &Builder{base: base}
}

func (b *Builder) TaskURL(taskID, projectID int64) string {
	if b == nil || b.base == nil {
		return ""
	}
	return TaskURL(b.base(), taskID, projectID)
}
