package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suPer8Hu/remote-control/internal/automation"
	"github.com/suPer8Hu/remote-control/internal/conversation"
)

const maxListedItems = 10

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown makes user-supplied text safe inside a legacy Markdown reply.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// summaryText renders a successful automation result. It only reads res.
func summaryText(f *conversation.Flow, payload map[string]any, res *automation.Result) string {
	var b strings.Builder
	b.WriteString("✅ *Success!*\n\n")

	created := "multiple"
	switch {
	case res.TasksCreated != nil:
		created = strconv.Itoa(*res.TasksCreated)
	case len(res.Tasks) > 0:
		created = strconv.Itoa(len(res.Tasks))
	}
	fmt.Fprintf(&b, "Created %s tasks\n", created)

	// the first step is the free-text brief; the rest are short settings
	for i, st := range f.Steps {
		if i == 0 {
			continue
		}
		if v, ok := payload[st.Name]; ok && fmt.Sprint(v) != "" {
			fmt.Fprintf(&b, "%s: %s\n", st.Label, escapeMarkdown(fmt.Sprint(v)))
		}
	}

	if len(res.Tasks) > 0 {
		b.WriteString("\n*Tasks:*\n")
		for i, t := range res.Tasks {
			if i == maxListedItems {
				fmt.Fprintf(&b, "...and %d more\n", len(res.Tasks)-maxListedItems)
				break
			}
			fmt.Fprintf(&b, "%d. *%s*", i+1, escapeMarkdown(t.Title))
			if d := itemDetails(t); d != "" {
				b.WriteString(" | " + d)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nUse /status to check workflow execution details.")
	return b.String()
}

func itemDetails(t automation.Item) string {
	var parts []string
	if t.Priority != "" {
		parts = append(parts, escapeMarkdown(t.Priority))
	}
	if t.Hours > 0 {
		parts = append(parts, strconv.FormatFloat(t.Hours, 'f', -1, 64)+"h")
	}
	if t.Assignee != "" {
		parts = append(parts, escapeMarkdown(t.Assignee))
	}
	if t.Budget > 0 {
		parts = append(parts, fmt.Sprintf("$%.2f", t.Budget))
	}
	if t.Area != "" {
		parts = append(parts, escapeMarkdown(t.Area))
	}
	if t.Timeframe != "" {
		parts = append(parts, escapeMarkdown(t.Timeframe))
	}
	return strings.Join(parts, " | ")
}

func failureText(f *conversation.Flow, err error) string {
	return f.Failed + "\nError: " + err.Error() + "\n\nPlease check your configuration and try again."
}
