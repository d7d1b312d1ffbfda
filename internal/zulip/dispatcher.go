package zulip

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zulipnotify/internal/event"
	"zulipnotify/internal/eventbus"
	"zulipnotify/internal/metrics"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/transport"
	"zulipnotify/pkg/logx"
)

type EventData = event.Data

// MetadataReader returns every metadata entry stored for (scope, id).
type MetadataReader interface {
	Metadata(ctx context.Context, scope storage.Scope, id int64) (map[string]string, error)
}

type ProjectFinder interface {
	ProjectByID(ctx context.Context, id int64) (storage.Project, error)
}

// Settings exposes the global configuration values.
type Settings interface {
	WebhookURL() string
	ApplicationURL() string
}

type TitleFormatter interface {
	TitleWithAuthor(author, eventName string, d event.Data) string
	TitleWithoutAuthor(eventName string, d event.Data) string
}

// TaskURLBuilder returns the absolute URL of a task page.
type TaskURLBuilder interface {
	TaskURL(taskID, projectID int64) string
}

// User identifies the recipient of a per-user notification.
type User struct {
	ID int64 `json:"id"`
}

// Deps are the Dispatcher's collaborators. Log, Bus and Metrics are optional.
type Deps struct {
	Metadata MetadataReader
	Projects ProjectFinder
	Settings Settings
	Titles   TitleFormatter
	URLs     TaskURLBuilder
	Poster   transport.AsyncPoster

	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics *metrics.Metrics
}

type Dispatcher struct {
	meta     MetadataReader
	projects ProjectFinder
	settings Settings
	titles   TitleFormatter
	urls     TaskURLBuilder
	poster   transport.AsyncPoster

	log logx.Logger
	bus eventbus.Bus
	m   *metrics.Metrics
}

func New(d Deps) *Dispatcher {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		meta:     d.Metadata,
		projects: d.Projects,
		settings: d.Settings,
		titles:   d.Titles,
		urls:     d.URLs,
		poster:   d.Poster,
		log:      log.With(logx.String("comp", "zulip")),
		bus:      d.Bus,
		m:        d.Metrics,
	}
}

// NotifyUser sends eventName to the user's configured destination. The
// overdue aggregate event becomes one message per task.
func (d *Dispatcher) NotifyUser(ctx context.Context, user User, eventName string, data EventData) error {
	rc, err := d.recipient(ctx, storage.ScopeUser, user.ID)
	if err != nil {
		return err
	}
	if rc.WebhookURL == "" {
		d.skip(storage.ScopeUser, user.ID, eventName, eventbus.TypeDispatchUnconfigured, metrics.OutcomeUnconfigured)
		return nil
	}

	if eventName == event.TaskOverdue {
		for _, t := range data.Tasks {
			project := d.project(ctx, int64(t.ProjectID))
			d.sendMessage(ctx, rc, project, eventName, data.WithTask(t))
			d.m.RecordDispatch(string(storage.ScopeUser), metrics.OutcomeSubmitted)
		}
		return nil
	}

	project := d.project(ctx, int64(data.Task.ProjectID))
	d.sendMessage(ctx, rc, project, eventName, data)
	d.m.RecordDispatch(string(storage.ScopeUser), metrics.OutcomeSubmitted)
	return nil
}

// NotifyProject sends eventName to the project's configured destination,
// subject to the project's event filter.
func (d *Dispatcher) NotifyProject(ctx context.Context, project storage.Project, eventName string, data EventData) error {
	rc, err := d.recipient(ctx, storage.ScopeProject, project.ID)
	if err != nil {
		return err
	}
	if rc.WebhookURL == "" {
		d.skip(storage.ScopeProject, project.ID, eventName, eventbus.TypeDispatchUnconfigured, metrics.OutcomeUnconfigured)
		return nil
	}
	if !parseEventFilter(rc.EventFilter).allows(eventName) {
		d.skip(storage.ScopeProject, project.ID, eventName, eventbus.TypeDispatchSuppressed, metrics.OutcomeSuppressed)
		return nil
	}

	d.sendMessage(ctx, rc, project, eventName, data)
	d.m.RecordDispatch(string(storage.ScopeProject), metrics.OutcomeSubmitted)
	return nil
}

// BuildPayload maps an event onto a Zulip message. It has no side effects.
func (d *Dispatcher) BuildPayload(ctx context.Context, project storage.Project, eventName string, data EventData, channel, subject, typ string, emails []string) Payload {
	var title string
	if s := SessionFrom(ctx); s.IsLogged() {
		title = d.titles.TitleWithAuthor(s.Fullname(), eventName, data)
	} else {
		title = d.titles.TitleWithoutAuthor(eventName, data)
	}

	content := "**[" + project.Name + "]** "
	if d.settings.ApplicationURL() != "" {
		content += "[" + data.Task.Title + "](" + d.urls.TaskURL(int64(data.Task.ID), project.ID) + ")\n"
	}
	content += title + "\n"

	if NormalizeType(typ) == TypeDirect {
		return Payload{
			Type:    TypeDirect,
			To:      append([]string(nil), emails...),
			Content: content,
		}
	}
	return Payload{
		Type:    TypeChannel,
		Channel: channel,
		Topic:   subject,
		Content: content,
	}
}

func (d *Dispatcher) sendMessage(ctx context.Context, rc RecipientConfig, project storage.Project, eventName string, data EventData) {
	p := d.BuildPayload(ctx, project, eventName, data, rc.Channel, rc.Subject, rc.MessageType, rc.Emails)

	header := http.Header{}
	if rc.APIKey != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(rc.APIKey)))
	}

	d.poster.PostFormAsync(rc.WebhookURL, p.Form(), header)
	if d.log.Enabled(logx.LevelDebug) {
		d.log.Debug("message submitted",
			logx.String("event", eventName),
			logx.Int64("project_id", project.ID),
			logx.Int64("task_id", int64(data.Task.ID)),
			logx.String("type", string(p.Type)),
		)
	}
}

func (d *Dispatcher) recipient(ctx context.Context, scope storage.Scope, id int64) (RecipientConfig, error) {
	meta, err := d.meta.Metadata(ctx, scope, id)
	if err != nil {
		d.m.RecordDispatch(string(scope), metrics.OutcomeError)
		return RecipientConfig{}, fmt.Errorf("read %s %d metadata: %w", scope, id, err)
	}
	return recipientFromMetadata(scope, meta, d.settings.WebhookURL()), nil
}

// project resolves a task's project. A failed lookup still yields a project
// with the id set and an empty name.
func (d *Dispatcher) project(ctx context.Context, id int64) storage.Project {
	p, err := d.projects.ProjectByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			d.log.Warn("project not found", logx.Int64("project_id", id))
		} else {
			d.log.Warn("project lookup failed", logx.Int64("project_id", id), logx.Err(err))
		}
		return storage.Project{ID: id}
	}
	return p
}

func (d *Dispatcher) skip(scope storage.Scope, id int64, eventName, busType, outcome string) {
	d.m.RecordDispatch(string(scope), outcome)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: busType,
			Time: time.Now(),
			Data: eventbus.DispatchEvent{Scope: string(scope), SubjectID: id, EventName: eventName},
		})
	}
}
