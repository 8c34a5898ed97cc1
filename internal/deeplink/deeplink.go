// Package deeplink encodes the navigation payload that opens a task's detail
// view, whether from the task list, an edit result or a tapped reminder.
package deeplink

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tgienger/duetask/internal/models"
)

// Screens a link can land on
const (
	TaskList   = "task_list"
	TaskDetail = "task_detail"
)

// ErrInvalid is returned for payloads that fail schema validation
var ErrInvalid = errors.New("invalid deep link")

//go:embed link.schema.json
var schemaText string

var schema = jsonschema.MustCompileString("link.schema.json", schemaText)

// Link is a navigable request for a task. TaskID is nil when the link refers
// to a task that has not been stored yet.
type Link struct {
	Target         string `json:"target"`
	TaskID         *int64 `json:"task_id,omitempty"`
	TaskName       string `json:"task_name"`
	TaskNotes      string `json:"task_notes"`
	TaskDueDate    *int64 `json:"task_due_date,omitempty"`
	TaskCompleted  bool   `json:"task_completed"`
	NotificationID int    `json:"notification_id,omitempty"`
}

// FromTask builds a link to the detail view of t
func FromTask(t models.Task) Link {
	return Link{
		Target:        TaskDetail,
		TaskID:        t.ID,
		TaskName:      t.Title,
		TaskNotes:     t.Notes,
		TaskDueDate:   t.DueDate,
		TaskCompleted: t.Completed,
	}
}

// Task converts the link back into the task it carries
func (l Link) Task() models.Task {
	return models.Task{
		ID:        l.TaskID,
		Title:     l.TaskName,
		Notes:     l.TaskNotes,
		DueDate:   l.TaskDueDate,
		Completed: l.TaskCompleted,
	}
}

// BackStack returns the screens to open, bottom first. Detail links get the
// task list underneath so backing out never leaves the user nowhere.
func (l Link) BackStack() []string {
	if l.Target == TaskList {
		return []string{TaskList}
	}
	return []string{TaskList, l.Target}
}

// Encode serializes a link
func Encode(l Link) ([]byte, error) {
	if l.Target == "" {
		l.Target = TaskDetail
	}
	return json.Marshal(l)
}

// Decode parses and validates a serialized link
func Decode(data []byte) (Link, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(raw); err != nil {
		return Link{}, fmt.Errorf("%w: %s", ErrInvalid, firstCause(err))
	}

	var l Link
	if err := json.Unmarshal(data, &l); err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return l, nil
}

// firstCause digs out the most specific validation message
func firstCause(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}
