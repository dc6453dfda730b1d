package summary

import (
	"regexp"
	"strconv"
	"strings"
)

// Unassigned is the owner of a task nobody was named for.
const Unassigned = "Unassigned"

// Task is one extracted action item.
type Task struct {
	Owner string
	Text  string
	Due   string
}

var (
	bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.*)$`)
	ownerRe  = regexp.MustCompile(`^(?:\*\*)?\[([^\]]*)\](?:\*\*)?\s*(?:[-–—:]\s*)?(.*)$`)
	dueRe    = regexp.MustCompile(`(?i)\s*\((?:due|deadline)\s*:\s*([^)]*)\)\s*$`)
)

// ParseTasks reads the "- [Owner] task (due: ...)" lines of a model reply.
// Lines that are not list items are ignored.
func ParseTasks(reply string) []Task {
	var tasks []Task
	for _, line := range strings.Split(reply, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[1])

		owner := ""
		if om := ownerRe.FindStringSubmatch(body); om != nil {
			owner = strings.TrimSpace(strings.Trim(om[1], "*"))
			body = strings.TrimSpace(om[2])
		}

		due := ""
		if dm := dueRe.FindStringSubmatchIndex(body); dm != nil {
			due = strings.TrimSpace(body[dm[2]:dm[3]])
			body = strings.TrimSpace(body[:dm[0]])
		}
		body = strings.TrimSpace(strings.Trim(body, "*"))
		if body == "" || strings.EqualFold(body, "none") {
			continue
		}
		tasks = append(tasks, Task{Owner: normalizeOwner(owner), Text: body, Due: normalizeDue(due)})
	}
	return tasks
}

func normalizeOwner(s string) string {
	switch strings.ToLower(s) {
	case "", "unassigned", "none", "unknown", "n/a", "not specified", "nobody":
		return Unassigned
	}
	return s
}

func normalizeDue(s string) string {
	switch strings.ToLower(s) {
	case "none", "n/a", "-", "no", "not specified", "unknown":
		return ""
	}
	return s
}

// RenderTasks formats tasks as a numbered list.
func RenderTasks(tasks []Task) string {
	var b strings.Builder
	b.WriteString("✅ **Tasks**\n\n")
	if len(tasks) == 0 {
		b.WriteString("No concrete tasks found.")
		return b.String()
	}
	for i, t := range tasks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i+1) + ". **" + t.Owner + "**: " + t.Text)
		if t.Due != "" {
			b.WriteString(" (due: " + t.Due + ")")
		}
	}
	return b.String()
}
