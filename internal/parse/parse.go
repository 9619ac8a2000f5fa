// Package parse extracts structured tasks from raw note lines.
package parse

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"duewatch/internal/domain"
)

var (
	markerRE = regexp.MustCompile(`^\s*-\s*\[\s*\]\s*`)
	dateRE   = regexp.MustCompile(`📅\s*(\d{4}-\d{2}-\d{2})`)
	timeRE   = regexp.MustCompile(`⏰\s*(\d{2}:\d{2})`)
	tagRE    = regexp.MustCompile(`#\S+`)
)

// Line parses a single note line. ok is false when the line is not an
// unchecked checklist item. A returned task may still lack a date; dateless
// tasks are discarded downstream.
//
// When a line carries more than one date or time token only the first match
// of each is extracted; every occurrence of the exact matched substring is
// removed from the text.
func Line(line string) (domain.Task, bool) {
	if !markerRE.MatchString(line) {
		return domain.Task{}, false
	}
	rest := strings.TrimSpace(markerRE.ReplaceAllString(line, " "))

	var t domain.Task
	dm := dateRE.FindStringSubmatch(rest)
	tm := timeRE.FindStringSubmatch(rest)
	if dm != nil {
		t.Date = dm[1]
		rest = strings.ReplaceAll(rest, dm[0], "")
	}
	if tm != nil {
		t.Time = tm[1]
		rest = strings.ReplaceAll(rest, tm[0], "")
	}

	// Tags are collected after date/time removal so a tag can never sit
	// inside a date or time token.
	t.Tags = tagRE.FindAllString(rest, -1)
	rest = tagRE.ReplaceAllString(rest, "")

	t.Text = strings.Join(strings.Fields(rest), " ")
	return t, true
}

// TaskID derives the stable identity for a task: the SHA-1 hex digest of
// "<filePath>:<normalizedText>". Two tasks with identical text in the same
// file collapse to one identity.
func TaskID(filePath, text string) string {
	sum := sha1.Sum([]byte(filePath + ":" + text))
	return hex.EncodeToString(sum[:])
}
