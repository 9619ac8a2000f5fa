package scan_test

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"duewatch/internal/config"
	"duewatch/internal/db"
	"duewatch/internal/domain"
	"duewatch/internal/migrate"
	"duewatch/internal/notify"
	"duewatch/internal/scan"
)

type gotifyRecorder struct {
	mu       sync.Mutex
	requests []domain.Notification
	status   int
}

func (g *gotifyRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		g.mu.Lock()
		g.requests = append(g.requests, domain.Notification{
			Title:   r.PostFormValue("title"),
			Message: r.PostFormValue("message"),
		})
		status := g.status
		g.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	})
}

func (g *gotifyRecorder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *gotifyRecorder) last() domain.Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func (g *gotifyRecorder) setStatus(s int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = s
}

type env struct {
	engine   scan.Engine
	vault    string
	recorder *gotifyRecorder
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	workspace := t.TempDir()
	vault := filepath.Join(workspace, "vault")
	if err := os.MkdirAll(vault, 0o755); err != nil {
		t.Fatal(err)
	}

	rec := &gotifyRecorder{}
	srv := httptest.NewServer(rec.handler())
	t.Cleanup(srv.Close)

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.Vault.Path = vault
	cfg.Vault.ExcludeDirs = []string{"archive"}
	cfg.Gotify.ServerURL = srv.URL
	cfg.Gotify.Token = "tok"
	cfg.Notify.DefaultTime = "08:00"

	e := scan.New(conn, cfg, notify.NewGotify(srv.URL, "tok"), workspace)
	e.Now = func() time.Time { return now }
	e.Logger = log.New(io.Discard, "", 0)
	return &env{engine: e, vault: vault, recorder: rec}
}

func (e *env) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.vault, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *env) run(t *testing.T, opts scan.RunOptions) domain.RunReport {
	t.Helper()
	report, err := e.engine.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return report
}

const sampleLine = "- [ ] Pay rent 📅 2024-01-01 ⏰ 09:00 #finance\n"

func TestDueTaskNotifiedExactlyOnce(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine)

	report := e.run(t, scan.RunOptions{})
	if report.Sent != 1 || e.recorder.count() != 1 {
		t.Fatalf("expected exactly one notification, sent=%d requests=%d", report.Sent, e.recorder.count())
	}
	got := e.recorder.last()
	if got.Title != "✅️ New task" {
		t.Fatalf("title = %q", got.Title)
	}
	for _, want := range []string{"📝 Pay rent", "⏰ 09:00", "🏷️ #finance", "📄 notes"} {
		if !strings.Contains(got.Message, want) {
			t.Fatalf("message %q missing %q", got.Message, want)
		}
	}

	// Second run later the same day: suppressed by the ledger.
	e.engine.Now = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) }
	report = e.run(t, scan.RunOptions{})
	if report.Sent != 0 || e.recorder.count() != 1 {
		t.Fatalf("second run must not re-notify, sent=%d requests=%d", report.Sent, e.recorder.count())
	}
	if len(report.Results) != 1 || report.Results[0].Outcome != domain.OutcomeAlreadySent {
		t.Fatalf("expected already_sent outcome, got %+v", report.Results)
	}
}

func TestNotYetDueLeavesLedgerUntouched(t *testing.T) {
	e := newEnv(t, time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine)

	report := e.run(t, scan.RunOptions{})
	if e.recorder.count() != 0 {
		t.Fatalf("expected zero notifications before the due date")
	}
	if len(report.Results) != 1 || report.Results[0].Outcome != domain.OutcomeNotDue {
		t.Fatalf("expected not_due outcome, got %+v", report.Results)
	}
	n, err := e.engine.Ledger.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("ledger must stay empty, got %d entries", n)
	}
}

func TestExcludedDirectoryNeverNotifies(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "archive/old.md", sampleLine)
	e.write(t, "archive/nested/deep.md", sampleLine)

	report := e.run(t, scan.RunOptions{})
	if e.recorder.count() != 0 || report.Candidates != 0 {
		t.Fatalf("excluded files must not be scanned, requests=%d candidates=%d", e.recorder.count(), report.Candidates)
	}
}

func TestExclusionMatchesSegmentsNotSubstrings(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	// "archives" contains "archive" as a substring but is a different dir.
	e.write(t, "archives/current.md", sampleLine)

	report := e.run(t, scan.RunOptions{})
	if report.Candidates != 1 {
		t.Fatalf("substring-similar dir must still be scanned, candidates=%d", report.Candidates)
	}
}

func TestRunBeforeWindowResetsAndSkipsScan(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine)
	ctx := context.Background()
	if err := e.engine.Ledger.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.engine.Ledger.Record(ctx, "stale-entry", time.Now()); err != nil {
		t.Fatal(err)
	}

	report := e.run(t, scan.RunOptions{})
	if !report.Reset {
		t.Fatalf("expected reset run")
	}
	if report.FilesScanned != 0 || e.recorder.count() != 0 {
		t.Fatalf("reset run must not scan or notify")
	}
	n, err := e.engine.Ledger.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("ledger must be cleared, got %d entries", n)
	}
}

func TestBadTimestampDoesNotAbortRun(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", "- [ ] broken 📅 2024-13-40\n"+sampleLine)

	report := e.run(t, scan.RunOptions{})
	if report.Sent != 1 {
		t.Fatalf("good task must still be delivered, sent=%d", report.Sent)
	}
	var sawBad bool
	for _, r := range report.Results {
		if r.Outcome == domain.OutcomeBadTimestamp {
			sawBad = true
		}
	}
	if !sawBad {
		t.Fatalf("expected a bad_timestamp result, got %+v", report.Results)
	}
}

func TestFailedDeliveryRetriedNextRun(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine)
	e.recorder.setStatus(http.StatusInternalServerError)

	report := e.run(t, scan.RunOptions{})
	if report.Sent != 0 || report.Failed != 1 {
		t.Fatalf("expected one failed delivery, sent=%d failed=%d", report.Sent, report.Failed)
	}
	n, _ := e.engine.Ledger.Count(context.Background())
	if n != 0 {
		t.Fatalf("failed delivery must not be recorded")
	}

	// The next invocation is the retry mechanism.
	e.recorder.setStatus(http.StatusOK)
	report = e.run(t, scan.RunOptions{})
	if report.Sent != 1 {
		t.Fatalf("expected retry to deliver, sent=%d", report.Sent)
	}
}

func TestDryRunSendsNothing(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine)

	report := e.run(t, scan.RunOptions{DryRun: true})
	if e.recorder.count() != 0 {
		t.Fatalf("dry run must not call the notifier")
	}
	if len(report.Results) != 1 || report.Results[0].Outcome != domain.OutcomeWouldSend {
		t.Fatalf("expected would_send outcome, got %+v", report.Results)
	}
	n, _ := e.engine.Ledger.Count(context.Background())
	if n != 0 {
		t.Fatalf("dry run must not record deliveries")
	}
}

func TestNonTasksAndDatelessTasksIgnored(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", strings.Join([]string{
		"# Heading",
		"plain prose line",
		"- [x] checked item 📅 2024-01-01",
		"- [ ] dateless task #tag",
		"",
	}, "\n"))

	report := e.run(t, scan.RunOptions{})
	if report.Candidates != 0 || e.recorder.count() != 0 {
		t.Fatalf("nothing should qualify, candidates=%d requests=%d", report.Candidates, e.recorder.count())
	}
	if report.FilesScanned != 1 {
		t.Fatalf("file must still be scanned, got %d", report.FilesScanned)
	}
}

func TestDuplicateTextCollapsesToOneIdentity(t *testing.T) {
	// Accepted trade-off: identical text in the same file shares one
	// identity, so only the first occurrence notifies.
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine+sampleLine)

	report := e.run(t, scan.RunOptions{})
	if report.Candidates != 2 {
		t.Fatalf("both lines are candidates, got %d", report.Candidates)
	}
	if e.recorder.count() != 1 {
		t.Fatalf("duplicate text must notify once, got %d", e.recorder.count())
	}
}

func TestNonMarkdownFilesSkipped(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.txt", sampleLine)

	report := e.run(t, scan.RunOptions{})
	if report.FilesScanned != 0 || report.Candidates != 0 {
		t.Fatalf("non-markdown files must be ignored, files=%d candidates=%d", report.FilesScanned, report.Candidates)
	}
}

func TestRunEventsRecorded(t *testing.T) {
	e := newEnv(t, time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC))
	e.write(t, "notes.md", sampleLine)

	report := e.run(t, scan.RunOptions{})
	evts, err := e.engine.Events.Latest(context.Background(), 10, "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	types := map[string]bool{}
	for _, evt := range evts {
		if evt.RunID == report.RunID {
			types[evt.Type] = true
		}
	}
	for _, want := range []string{"run.started", "notification.sent", "run.completed"} {
		if !types[want] {
			t.Fatalf("missing event %s in %v", want, types)
		}
	}
}
