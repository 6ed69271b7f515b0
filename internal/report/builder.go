// Package report renders run results for humans.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/panelrenew/panelrenew/internal/types"
)

// Builder creates run reports
type Builder struct {
	serverURL string
	template  *template.Template
}

// New creates a new report builder for the server at serverURL
func New(serverURL string) (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{
		serverURL: serverURL,
		template:  tmpl,
	}, nil
}

// Report represents a rendered report ready for sending
type Report struct {
	Subject   string
	HTMLBody  string
	PlainBody string
	// Screenshot is the last captured screenshot, if any.
	Screenshot string
	Outcome    types.Outcome
}

// ReportData is the template data structure
type ReportData struct {
	Title       string
	Outcome     string
	Success     bool
	ServerURL   string
	Started     string
	Duration    string
	Strategy    string
	Attempts    []AttemptData
	AddTime     string
	Error       string
	AssetURL    string
	Screenshots []string
}

// AttemptData represents one login attempt in the template
type AttemptData struct {
	Strategy string
	Status   string
	Error    string
}

// Build creates a report from run
func (b *Builder) Build(run *types.RunResult) (*Report, error) {
	if run == nil {
		return nil, fmt.Errorf("no run to report")
	}

	data := ReportData{
		Title:     "panelrenew: " + headline(run.Outcome),
		Outcome:   string(run.Outcome),
		Success:   run.Outcome != types.OutcomeFailed,
		ServerURL: b.serverURL,
		Started:   run.StartedAt.UTC().Format(time.RFC1123),
		Duration:  run.Duration().Round(time.Second).String(),
		Strategy:  string(run.LoginStrategy()),
		Error:     run.Error,
		AssetURL:  run.AssetURL,
	}
	if run.Login != nil {
		for _, a := range run.Login.Attempts {
			data.Attempts = append(data.Attempts, AttemptData{
				Strategy: string(a.Strategy),
				Status:   string(a.Status),
				Error:    a.Error,
			})
		}
	}
	if run.Claim != nil && run.Claim.AddTimePolls > 0 {
		data.AddTime = fmt.Sprintf("found after %d checks", run.Claim.AddTimePolls)
		if run.Claim.Outcome == types.OutcomeNotAvailable {
			data.AddTime = fmt.Sprintf("not offered after %d checks", run.Claim.AddTimePolls)
		}
	}
	for _, s := range run.Screenshots {
		data.Screenshots = append(data.Screenshots, filepath.Base(s))
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	r := &Report{
		Subject:   fmt.Sprintf("panelrenew %s - %s", run.Outcome, run.StartedAt.UTC().Format("Jan 2 15:04 MST")),
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		Outcome:   run.Outcome,
	}
	if n := len(run.Screenshots); n > 0 {
		r.Screenshot = run.Screenshots[n-1]
	}
	return r, nil
}

func headline(o types.Outcome) string {
	switch o {
	case types.OutcomeClaimed:
		return "server time extended"
	case types.OutcomeNotAvailable:
		return "no time available yet"
	default:
		return "run failed"
	}
}

func buildPlainText(data ReportData) string {
	var buf strings.Builder
	buf.WriteString(data.Title + "\n")
	fmt.Fprintf(&buf, "Server: %s\n", data.ServerURL)
	fmt.Fprintf(&buf, "Started: %s (%s)\n", data.Started, data.Duration)

	if data.Strategy != "" {
		fmt.Fprintf(&buf, "Login: %s\n", data.Strategy)
	} else if len(data.Attempts) > 0 {
		buf.WriteString("Login attempts:\n")
		for _, a := range data.Attempts {
			fmt.Fprintf(&buf, "  %s: %s", a.Strategy, a.Status)
			if a.Error != "" {
				fmt.Fprintf(&buf, " (%s)", a.Error)
			}
			buf.WriteString("\n")
		}
	}
	if data.AddTime != "" {
		fmt.Fprintf(&buf, "Add time: %s\n", data.AddTime)
	}
	if data.Error != "" {
		fmt.Fprintf(&buf, "Error: %s\n", data.Error)
	}
	if data.AssetURL != "" {
		fmt.Fprintf(&buf, "Evidence: %s\n", data.AssetURL)
	}
	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        .ok { color: #2e7d32; }
        .fail { color: #c62828; }
        table { border-collapse: collapse; width: 100%; }
        td { padding: 4px 8px; border-bottom: 1px solid #eee; vertical-align: top; }
        .muted { color: #666; font-size: 13px; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{if .Success}}ok{{else}}fail{{end}}">{{.Title}}</h1>
        <div class="muted">{{.Started}} · {{.Duration}} · <a href="{{.ServerURL}}">{{.ServerURL}}</a></div>

        {{if .Attempts}}
        <h3>Login</h3>
        <table>
            {{range .Attempts}}<tr><td>{{.Strategy}}</td><td>{{.Status}}</td><td class="muted">{{.Error}}</td></tr>{{end}}
        </table>
        {{end}}

        {{if .AddTime}}<p>Add time: {{.AddTime}}</p>{{end}}
        {{if .Error}}<p class="fail">{{.Error}}</p>{{end}}
        {{if .AssetURL}}<p><a href="{{.AssetURL}}">Download screenshots</a></p>{{end}}
        {{if .Screenshots}}<p class="muted">{{range .Screenshots}}{{.}} {{end}}</p>{{end}}
    </div>
</body>
</html>`
