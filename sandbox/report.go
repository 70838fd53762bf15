package sandbox

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultDisplayLimit is the rendered length, in characters, at which
	// logs move into attachments
	DefaultDisplayLimit = 1000

	TimeoutText    = "Timeout"
	OverflowText   = "Result log out of length."
	RunLogFile     = "result_log.txt"
	CompileLogFile = "compile_log.txt"
)

// Report is a Result rendered for a chat reply
type Report struct {
	Text        string
	Attachments []Artifact
}

var mentionEscaper = strings.NewReplacer("@", `\@`)

// Render formats the result. Logs whose rendering reaches limit characters
// are replaced by a placeholder and attached verbatim instead.
func (r *Result) Render(limit int) Report {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}

	if r.TimedOut {
		return Report{
			Text:        TimeoutText,
			Attachments: append([]Artifact(nil), r.Files...),
		}
	}

	var report Report
	if r.CompileLog == "" {
		report.Text = fmt.Sprintf("Result\n```\n%s\n```", mentionEscaper.Replace(r.RunLog))
	} else {
		report.Text = fmt.Sprintf("Result\nCompilation log\n```\n%s\n```\nExecution log\n```\n%s\n```",
			mentionEscaper.Replace(r.CompileLog), mentionEscaper.Replace(r.RunLog))
	}

	if utf8.RuneCountInString(report.Text) >= limit {
		report.Text = OverflowText
		report.Attachments = append(report.Attachments, Artifact{Path: RunLogFile, Data: []byte(r.RunLog)})
		if r.CompileLog != "" {
			report.Attachments = append(report.Attachments, Artifact{Path: CompileLogFile, Data: []byte(r.CompileLog)})
		}
	}

	for _, path := range r.Missing {
		report.Text += fmt.Sprintf("\nfile not found: `%s`", path)
	}
	report.Attachments = append(report.Attachments, r.Files...)

	return report
}
