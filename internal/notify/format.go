package notify

import (
	"path/filepath"
	"strings"

	"duewatch/internal/domain"
)

const defaultTitle = "✅️ New task"

// Message builds the notification payload for a due task: the task text,
// the original time if the line carried one (never the defaulted time), the
// tag list, and the source file's base name without extension.
func Message(t domain.Task) domain.Notification {
	tags := "No"
	if len(t.Tags) > 0 {
		tags = strings.Join(t.Tags, ", ")
	}
	name := filepath.Base(t.File)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	parts := []string{"📝 " + strings.TrimSpace(t.Text)}
	if t.Time != "" {
		parts = append(parts, "⏰ "+t.Time)
	}
	parts = append(parts, "🏷️ "+tags, "📄 "+name)

	return domain.Notification{
		Title:   defaultTitle,
		Message: strings.Join(parts, "\n"),
	}
}
