// Package scan drives one batch run: walk the vault, parse task lines,
// check the ledger, evaluate due-ness, and dispatch notifications.
package scan

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"duewatch/internal/config"
	"duewatch/internal/domain"
	"duewatch/internal/due"
	"duewatch/internal/events"
	"duewatch/internal/ledger"
	"duewatch/internal/notify"
	"duewatch/internal/parse"
)

const noteExt = ".md"

// Engine owns the ledger lifecycle for the duration of a run. Files and
// tasks are processed sequentially; the only retry mechanism for a failed
// delivery is the next invocation.
type Engine struct {
	DB        *sql.DB
	Ledger    ledger.Ledger
	Events    events.Writer
	Notifier  notify.Notifier
	Config    *config.Config
	Workspace string
	Now       func() time.Time
	Logger    *log.Logger
}

func New(conn *sql.DB, cfg *config.Config, n notify.Notifier, workspace string) Engine {
	return Engine{
		DB:        conn,
		Ledger:    ledger.Ledger{DB: conn},
		Events:    events.Writer{DB: conn},
		Notifier:  n,
		Config:    cfg,
		Workspace: workspace,
		Now:       time.Now,
	}
}

type RunOptions struct {
	DryRun bool
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run performs one batch scan. Per-item failures (bad timestamps, delivery
// errors, storage write errors) surface in the report and never abort the
// remaining work; only configuration and schema failures return an error.
func (e Engine) Run(ctx context.Context, opts RunOptions) (domain.RunReport, error) {
	report := domain.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: e.now().UTC().Format(time.RFC3339),
		DryRun:    opts.DryRun,
	}
	if e.Config == nil {
		return report, fmt.Errorf("config not loaded")
	}
	loc, err := e.Config.Location()
	if err != nil {
		return report, err
	}
	eval := due.Evaluator{Location: loc, DefaultTime: e.Config.Notify.DefaultTime, Now: e.Now}

	stateDir := filepath.Join(e.Workspace, ".duewatch")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return report, fmt.Errorf("ensure state dir: %w", err)
	}
	unlock, err := lockRun(filepath.Join(stateDir, "run.lock"))
	if err != nil {
		return report, err
	}
	defer unlock()

	e.appendEvent(ctx, "run.started", report.RunID, "", events.EventPayload{"dry_run": opts.DryRun})

	open, err := eval.WindowOpen()
	if err != nil {
		return report, err
	}
	if !open {
		// New day, before the notification window: clear yesterday's
		// suppressions and stop without scanning.
		report.Reset = true
		if err := e.Ledger.Reset(ctx); err != nil {
			e.logf("ledger reset failed, continuing: %v", err)
		}
		e.appendEvent(ctx, "run.reset", report.RunID, "", nil)
		report.FinishedAt = e.now().UTC().Format(time.RFC3339)
		return report, nil
	}

	if err := e.Ledger.EnsureSchema(ctx); err != nil {
		return report, err
	}

	files, err := e.listNoteFiles()
	if err != nil {
		return report, err
	}
	for _, file := range files {
		if err := e.scanFile(ctx, file, eval, opts, &report); err != nil {
			report.FilesFailed++
			e.logf("skipping %s: %v", file, err)
			continue
		}
		report.FilesScanned++
	}

	report.FinishedAt = e.now().UTC().Format(time.RFC3339)
	e.appendEvent(ctx, "run.completed", report.RunID, "", events.EventPayload{
		"files_scanned": report.FilesScanned,
		"candidates":    report.Candidates,
		"sent":          report.Sent,
		"failed":        report.Failed,
	})
	return report, nil
}

// listNoteFiles walks the vault collecting note files, pruning excluded
// directories. Exclusion matches whole path segments relative to the vault
// root, never substrings.
func (e Engine) listNoteFiles() ([]string, error) {
	root, err := filepath.Abs(e.Config.Vault.Path)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]bool, len(e.Config.Vault.ExcludeDirs))
	for _, d := range e.Config.Vault.ExcludeDirs {
		excluded[d] = true
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && excluded[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), noteExt) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault %s: %w", root, err)
	}
	return files, nil
}

// scanFile reads one note line by line so large files stay bounded in
// memory, and pushes every dated task through the pipeline.
func (e Engine) scanFile(ctx context.Context, path string, eval due.Evaluator, opts RunOptions, report *domain.RunReport) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		task, ok := parse.Line(scanner.Text())
		if !ok || task.Date == "" {
			continue
		}
		task.File = path
		task.Line = lineNo
		report.Candidates++
		report.Results = append(report.Results, e.process(ctx, task, eval, opts, report))
	}
	return scanner.Err()
}

// process takes one dated task through identity, ledger, due-ness, and
// delivery. Every task ends in exactly one outcome.
func (e Engine) process(ctx context.Context, task domain.Task, eval due.Evaluator, opts RunOptions, report *domain.RunReport) domain.TaskResult {
	res := domain.TaskResult{
		TaskID: parse.TaskID(task.File, task.Text),
		File:   task.File,
		Line:   task.Line,
		Text:   task.Text,
	}

	sent, assumed := e.Ledger.Seen(ctx, res.TaskID)
	if assumed {
		res.Outcome = domain.OutcomeAssumedSent
		res.Detail = "ledger read failed; treated as sent"
		e.logf("task %s treated as sent due to storage error", res.TaskID)
		return res
	}
	if sent {
		res.Outcome = domain.OutcomeAlreadySent
		return res
	}

	isDue, err := eval.Due(task.Date, task.Time)
	if err != nil {
		res.Outcome = domain.OutcomeBadTimestamp
		res.Detail = err.Error()
		return res
	}
	if !isDue {
		res.Outcome = domain.OutcomeNotDue
		return res
	}

	if opts.DryRun {
		res.Outcome = domain.OutcomeWouldSend
		return res
	}

	msg := notify.Message(task)
	if err := e.Notifier.Send(ctx, msg); err != nil {
		res.Outcome = domain.OutcomeSendFailed
		res.Detail = err.Error()
		report.Failed++
		e.logf("notification for task %s failed: %v", res.TaskID, err)
		e.appendEvent(ctx, "notification.failed", report.RunID, res.TaskID, events.EventPayload{"error": err.Error()})
		return res
	}

	// Record only after confirmed delivery; a write failure trades a
	// possible future duplicate for keeping the rest of the run alive.
	if err := e.Ledger.Record(ctx, res.TaskID, e.now()); err != nil {
		e.logf("ledger write failed for task %s: %v", res.TaskID, err)
	}
	res.Outcome = domain.OutcomeSent
	report.Sent++
	e.appendEvent(ctx, "notification.sent", report.RunID, res.TaskID, events.EventPayload{
		"title": msg.Title,
		"file":  filepath.Base(task.File),
	})
	return res
}

func (e Engine) appendEvent(ctx context.Context, evtType, runID, taskID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, evtType, runID, taskID, payload); err != nil {
		e.logf("append event %s: %v", evtType, err)
	}
}
