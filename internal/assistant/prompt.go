package assistant

import (
	"strings"

	"taskhive/server/internal/db"
)

var creatorKeywords = []string{
	"creator", "who made you", "who created you", "who built you", "author", "developer",
}

// wantsCreatorInfo reports whether the incoming message asks about the
// application's author; the out-of-band creator blurb is only attached then.
func wantsCreatorInfo(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range creatorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func buildSystemPrompt(active, archived []db.Task, creatorInfo string) string {
	var b strings.Builder
	b.WriteString("You are a task-management assistant. You help the user organize their personal tasks.\n")
	b.WriteString("You can create, update and delete tasks with the provided tools.\n")
	b.WriteString("Tasks are matched by exact title; when several share a title, report the candidates and ask which one is meant.\n")
	b.WriteString("Dates use the YYYY-MM-DD format.\n\n")

	b.WriteString("Current tasks:\n")
	if len(active) == 0 {
		b.WriteString("(none)\n")
	}
	for i := range active {
		b.WriteString(formatTaskLine(&active[i]))
	}
	if len(archived) > 0 {
		b.WriteString("\nArchived tasks:\n")
		for i := range archived {
			b.WriteString(formatTaskLine(&archived[i]))
		}
	}
	if creatorInfo != "" {
		b.WriteString("\nAbout the application's creator:\n")
		b.WriteString(creatorInfo)
		b.WriteString("\n")
	}
	return b.String()
}

func formatTaskLine(t *db.Task) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(t.Title)
	b.WriteString(" [")
	b.WriteString(t.Priority)
	b.WriteString("] (")
	b.WriteString(t.Status)
	b.WriteString(")")
	if t.DueDate != "" {
		b.WriteString(" due ")
		b.WriteString(t.DueDate)
	}
	if t.Category != nil {
		b.WriteString(" #")
		b.WriteString(t.Category.Name)
	}
	if desc := strings.TrimSpace(t.Description); desc != "" {
		b.WriteString(": ")
		b.WriteString(clip(desc, 120))
	}
	b.WriteString("\n")
	return b.String()
}
