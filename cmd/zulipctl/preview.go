package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"zulipnotify/internal/app"
	"zulipnotify/internal/config"
	"zulipnotify/internal/event"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/zulip"
	"zulipnotify/pkg/logx"
)

type previewOpts struct {
	taskID      int64
	title       string
	projectID   int64
	projectName string
	actor       string
	overdue     int
}

// capturePoster records posts instead of sending them.
type capturePoster struct {
	posts []PreviewPost
}

func (c *capturePoster) PostFormAsync(target string, form url.Values, header http.Header) {
	p := PreviewPost{
		URL:           target,
		Authorization: header.Get("Authorization") != "",
		Type:          form.Get("type"),
		Content:       form.Get("content"),
	}
	if p.Type == string(zulip.TypeDirect) {
		p.To = decodeRecipients(form.Get("to"))
	} else {
		p.Channel = form.Get("to")
		p.Topic = form.Get("topic")
	}
	c.posts = append(c.posts, p)
}

func decodeRecipients(raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{raw}
	}
	return out
}

func previewCmd(opts *globalOpts) *cobra.Command {
	po := &previewOpts{}
	cmd := &cobra.Command{
		Use:   "preview <user|project> <id> <event>",
		Short: "Show the messages a synthetic event would produce",
		Long: `Run a synthetic event through the dispatcher with the stored settings
and print the requests it would send. Nothing is posted.

Examples:
  zulipctl preview project 3 task.create --title "Rotate keys"
  zulipctl preview user 7 task.overdue --overdue 3 -o json`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, id, err := parseSubject(args[0], args[1])
			if err != nil {
				return err
			}
			eventName := strings.TrimSpace(args[2])
			return withStore(opts, func(ctx context.Context, cfgm *config.ConfigManager, st storage.Store) error {
				res, err := runPreview(ctx, cfgm, st, scope, id, eventName, po)
				if err != nil {
					return err
				}
				return outputResult(cmd.OutOrStdout(), res, opts.output)
			})
		},
	}
	cmd.Flags().Int64Var(&po.taskID, "task-id", 1, "Task id")
	cmd.Flags().StringVar(&po.title, "title", "Example task", "Task title")
	cmd.Flags().Int64Var(&po.projectID, "project-id", 0, "Task project id (defaults to the previewed project)")
	cmd.Flags().StringVar(&po.projectName, "project-name", "", "Project name when none is stored")
	cmd.Flags().StringVar(&po.actor, "actor", "", "Name of the user who triggered the event")
	cmd.Flags().IntVar(&po.overdue, "overdue", 2, "Number of tasks in a task.overdue preview")
	return cmd
}

func runPreview(ctx context.Context, cfgm *config.ConfigManager, st storage.Store, scope storage.Scope, id int64, eventName string, po *previewOpts) (PreviewResult, error) {
	projectID := po.projectID
	if projectID == 0 && scope == storage.ScopeProject {
		projectID = id
	}
	if projectID > 0 && po.projectName != "" {
		if _, err := st.ProjectByID(ctx, projectID); err != nil {
			// Only in memory for this run; the store is not written.
			st = withProject(st, storage.Project{ID: projectID, Name: po.projectName})
		}
	}

	task := event.Task{ID: event.ID(po.taskID), Title: po.title, ProjectID: event.ID(projectID)}
	data := event.Data{Task: task}
	if eventName == event.TaskOverdue {
		for i := 0; i < po.overdue; i++ {
			t := task
			t.ID = event.ID(po.taskID + int64(i))
			data.Tasks = append(data.Tasks, t)
		}
	}

	if po.actor != "" {
		ctx = zulip.WithActor(ctx, zulip.Actor{Username: po.actor, Name: po.actor})
	}

	capture := &capturePoster{}
	d := app.NewDispatcher(cfgm, st, capture, app.Observers{Log: logx.Nop()})

	var err error
	if scope == storage.ScopeUser {
		err = d.NotifyUser(ctx, zulip.User{ID: id}, eventName, data)
	} else {
		project, perr := st.ProjectByID(ctx, id)
		if perr != nil {
			project = storage.Project{ID: id, Name: po.projectName}
		}
		err = d.NotifyProject(ctx, project, eventName, data)
	}
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{Event: eventName, Posts: capture.posts}, nil
}

// projectOverlay answers one project lookup without touching the store.
type projectOverlay struct {
	storage.Store
	p storage.Project
}

func withProject(st storage.Store, p storage.Project) storage.Store {
	return projectOverlay{Store: st, p: p}
}

func (o projectOverlay) ProjectByID(ctx context.Context, id int64) (storage.Project, error) {
	if id == o.p.ID {
		return o.p, nil
	}
	return o.Store.ProjectByID(ctx, id)
}
