package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.yaml.in/yaml/v3"
)

type Setting struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

type MetadataResult struct {
	Scope    string    `json:"scope" yaml:"scope"`
	ID       int64     `json:"id" yaml:"id"`
	Settings []Setting `json:"settings" yaml:"settings"`
}

// PreviewPost is one request the service would send.
type PreviewPost struct {
	URL           string   `json:"url" yaml:"url"`
	Authorization bool     `json:"authorization" yaml:"authorization"`
	Type          string   `json:"type" yaml:"type"`
	To            []string `json:"to,omitempty" yaml:"to,omitempty"`
	Channel       string   `json:"channel,omitempty" yaml:"channel,omitempty"`
	Topic         string   `json:"topic,omitempty" yaml:"topic,omitempty"`
	Content       string   `json:"content" yaml:"content"`
}

type PreviewResult struct {
	Event string        `json:"event" yaml:"event"`
	Posts []PreviewPost `json:"posts" yaml:"posts"`
}

func outputResult(w io.Writer, result any, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		return outputTable(w, result)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func outputTable(out io.Writer, result any) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	switch r := result.(type) {
	case MetadataResult:
		if len(r.Settings) == 0 {
			fmt.Fprintf(w, "%s %d has no settings\n", r.Scope, r.ID)
			break
		}
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, s := range r.Settings {
			fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Value)
		}
	case PreviewResult:
		if len(r.Posts) == 0 {
			fmt.Fprintf(w, "%s: nothing would be sent\n", r.Event)
			break
		}
		for i, p := range r.Posts {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "URL:\t%s\n", p.URL)
			fmt.Fprintf(w, "AUTH:\t%t\n", p.Authorization)
			fmt.Fprintf(w, "TYPE:\t%s\n", p.Type)
			if p.Type == "direct" {
				fmt.Fprintf(w, "TO:\t%s\n", strings.Join(p.To, ", "))
			} else {
				fmt.Fprintf(w, "TO:\t%s\n", p.Channel)
				fmt.Fprintf(w, "TOPIC:\t%s\n", p.Topic)
			}
			fmt.Fprintf(w, "CONTENT:\t%s\n", strings.ReplaceAll(strings.TrimRight(p.Content, "\n"), "\n", "\n\t"))
		}
	default:
		return fmt.Errorf("no table layout for %T", result)
	}
	return w.Flush()
}
