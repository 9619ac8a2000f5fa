package domain

// Task is one unchecked checklist line extracted from a note file.
// Date and Time hold the raw token values ("2006-01-02", "15:04"); either
// may be empty. Text is the description with marker, tokens, and tags
// stripped and whitespace collapsed.
type Task struct {
	Text string   `json:"text"`
	Date string   `json:"date,omitempty"`
	Time string   `json:"time,omitempty"`
	Tags []string `json:"tags,omitempty"`
	File string   `json:"file,omitempty"`
	Line int      `json:"line,omitempty"`
}

// Notification is the payload handed to an external notifier.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type LedgerEntry struct {
	TaskID string `json:"task_id"`
	SentAt string `json:"sent_at" format:"date-time"`
}

// Outcome is the terminal state of one task within one run.
type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeSendFailed   Outcome = "send_failed"
	OutcomeAlreadySent  Outcome = "already_sent"
	OutcomeAssumedSent  Outcome = "assumed_sent"
	OutcomeNotDue       Outcome = "not_due"
	OutcomeBadTimestamp Outcome = "bad_timestamp"
	OutcomeWouldSend    Outcome = "would_send"
)

type TaskResult struct {
	TaskID  string  `json:"task_id"`
	File    string  `json:"file"`
	Line    int     `json:"line"`
	Text    string  `json:"text"`
	Outcome Outcome `json:"outcome" enum:"sent,send_failed,already_sent,assumed_sent,not_due,bad_timestamp,would_send"`
	Detail  string  `json:"detail,omitempty"`
}

// RunReport summarizes one batch scan.
type RunReport struct {
	RunID        string       `json:"run_id"`
	StartedAt    string       `json:"started_at" format:"date-time"`
	FinishedAt   string       `json:"finished_at" format:"date-time"`
	Reset        bool         `json:"reset"`
	DryRun       bool         `json:"dry_run,omitempty"`
	FilesScanned int          `json:"files_scanned"`
	FilesFailed  int          `json:"files_failed"`
	Candidates   int          `json:"candidates"`
	Sent         int          `json:"sent"`
	Failed       int          `json:"failed"`
	Results      []TaskResult `json:"results,omitempty"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	RunID   string `json:"run_id"`
	TaskID  string `json:"task_id,omitempty"`
	Payload string `json:"payload_json"`
}
