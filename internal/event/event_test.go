package event

import (
	"encoding/json"
	"testing"
)

func TestDataDecodesStringAndNumberIDs(t *testing.T) {
	raw := `{"task": {"id": "12", "title": "Fix login", "project_id": 3, "position": "2"},
	         "tasks": [{"id": 1, "project_id": "4"}], "comment": {"id": null, "comment": "hi"}}`

	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Task.ID != 12 || d.Task.ProjectID != 3 || d.Task.Position != 2 {
		t.Fatalf("task = %+v", d.Task)
	}
	if len(d.Tasks) != 1 || d.Tasks[0].ProjectID != 4 {
		t.Fatalf("tasks = %+v", d.Tasks)
	}
	if d.Comment == nil || d.Comment.ID != 0 {
		t.Fatalf("comment = %+v", d.Comment)
	}
}

func TestIDRejectsGarbage(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`"abc"`), &id); err == nil {
		t.Fatal("expected error")
	}
}

func TestWithTaskDoesNotMutateOriginal(t *testing.T) {
	d := Data{Task: Task{ID: 1}, Tasks: []Task{{ID: 2}, {ID: 3}}}
	cp := d.WithTask(d.Tasks[1])
	if cp.Task.ID != 3 {
		t.Fatalf("copy task = %d", cp.Task.ID)
	}
	if d.Task.ID != 1 {
		t.Fatalf("original mutated: %d", d.Task.ID)
	}
}
