package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/thinkpilot/internal/config"
	"github.com/kingrea/thinkpilot/internal/decompose"
	"github.com/kingrea/thinkpilot/internal/logbook"
	"github.com/kingrea/thinkpilot/internal/task"
)

func testSettings() Settings {
	return Settings{Host: "127.0.0.1", Port: 0, MaxBodyBytes: 4096, SessionTTL: time.Minute, MaxSessions: 10,
		ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
}

func newTestSite(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	srv := NewServer(testSettings(), opts...)
	site := httptest.NewServer(srv.Handler())
	t.Cleanup(site.Close)
	return site
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func post(t *testing.T, client *http.Client, site *httptest.Server, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := client.PostForm(site.URL+path, form)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func snapshot(t *testing.T, client *http.Client, site *httptest.Server) task.Snapshot {
	t.Helper()
	resp, err := client.Get(site.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("get tasks: %v", err)
	}
	defer resp.Body.Close()
	var snap task.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	return snap
}

func TestLandingPage(t *testing.T) {
	site := newTestSite(t)
	resp, err := http.Get(site.URL + "/")
	if err != nil {
		t.Fatalf("get landing: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "ThinkPilot") || !strings.Contains(body, `href="/todo-pilot"`) {
		t.Fatalf("landing = %d %q", resp.StatusCode, body)
	}
	resp, err = http.Get(site.URL + "/missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAddAndToggleFlow(t *testing.T) {
	site := newTestSite(t)
	browser := newBrowser(t)

	resp, body := post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"  buy milk "}})
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "buy milk") {
		t.Fatalf("add response = %d %q", resp.StatusCode, body)
	}
	snap := snapshot(t, browser, site)
	if len(snap.Tasks) != 1 || snap.Tasks[0].Text != "buy milk" || snap.Tasks[0].Completed || len(snap.Tasks[0].Steps) != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Input != "" {
		t.Fatalf("input = %q, want empty", snap.Input)
	}

	id := strconv.FormatInt(snap.Tasks[0].ID, 10)
	_, body = post(t, browser, site, "/todo-pilot/toggle", url.Values{"id": {id}})
	if !strings.Contains(body, `type="checkbox" id="done-`+id+`" aria-label="Completed" checked`) || !strings.Contains(body, `class="done"`) {
		t.Fatalf("completed task not rendered as done: %q", body)
	}
	if !snapshot(t, browser, site).Tasks[0].Completed {
		t.Fatalf("toggle did not complete the task")
	}
	_, body = post(t, browser, site, "/todo-pilot/toggle", url.Values{"id": {id}})
	if strings.Contains(body, " checked") {
		t.Fatalf("reopened task still checked: %q", body)
	}
	if snapshot(t, browser, site).Tasks[0].Completed {
		t.Fatalf("second toggle did not reopen the task")
	}
}

func TestBlankAddKeepsListAndBuffer(t *testing.T) {
	site := newTestSite(t)
	browser := newBrowser(t)
	post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"one"}})
	_, body := post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"   "}})
	snap := snapshot(t, browser, site)
	if len(snap.Tasks) != 1 {
		t.Fatalf("blank add changed list: %+v", snap.Tasks)
	}
	if snap.Input != "   " {
		t.Fatalf("input = %q, want the rejected text", snap.Input)
	}
	if !strings.Contains(body, `value="   "`) {
		t.Fatalf("input field not bound to buffer: %q", body)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	site := newTestSite(t)
	alice, bob := newBrowser(t), newBrowser(t)
	post(t, alice, site, "/todo-pilot/add", url.Values{"text": {"alice task"}})
	if got := len(snapshot(t, bob, site).Tasks); got != 0 {
		t.Fatalf("second session sees %d tasks", got)
	}
	if got := len(snapshot(t, alice, site).Tasks); got != 1 {
		t.Fatalf("first session sees %d tasks", got)
	}
}

func TestStepsStubLeavesBoard(t *testing.T) {
	site := newTestSite(t)
	browser := newBrowser(t)
	post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"plan trip"}})
	before := snapshot(t, browser, site)
	resp, body := post(t, browser, site, "/todo-pilot/steps", url.Values{"id": {strconv.FormatInt(before.Tasks[0].ID, 10)}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("steps status = %d", resp.StatusCode)
	}
	if strings.Contains(body, `class="steps"`) || strings.Contains(body, `class="flash"`) {
		t.Fatalf("stub produced visible output: %q", body)
	}
	after := snapshot(t, browser, site)
	if len(after.Tasks) != 1 || len(after.Tasks[0].Steps) != 0 {
		t.Fatalf("stub changed board: %+v", after)
	}
}

func TestStepsFromDecomposerAreRendered(t *testing.T) {
	d := decompose.Func(func(_ context.Context, text string) ([]string, error) {
		return []string{"step for " + text, "<b>escaped</b>"}, nil
	})
	journal, err := logbook.New(filepath.Join(t.TempDir(), "journal.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	site := newTestSite(t,
		WithBoardFactory(func() *task.Board { return task.NewBoard(task.WithDecomposer(d)) }),
		WithLogbook(journal))
	browser := newBrowser(t)
	post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"trip"}})
	id := strconv.FormatInt(snapshot(t, browser, site).Tasks[0].ID, 10)
	_, body := post(t, browser, site, "/todo-pilot/steps", url.Values{"id": {id}})
	if !strings.Contains(body, "<li>step for trip</li>") {
		t.Fatalf("steps not rendered: %q", body)
	}
	if strings.Contains(body, "<b>escaped</b>") {
		t.Fatalf("step text was not escaped")
	}
	lines, _ := journal.Tail(10)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"Session opened", "Task 1 added: trip", "broken into 2 steps"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("journal missing %q:\n%s", want, joined)
		}
	}
}

func TestStepsErrorFlashesOnce(t *testing.T) {
	d := decompose.Func(func(context.Context, string) ([]string, error) {
		return nil, errors.New("boom")
	})
	site := newTestSite(t, WithBoardFactory(func() *task.Board { return task.NewBoard(task.WithDecomposer(d)) }))
	browser := newBrowser(t)
	post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"x"}})
	id := strconv.FormatInt(snapshot(t, browser, site).Tasks[0].ID, 10)
	_, body := post(t, browser, site, "/todo-pilot/steps", url.Values{"id": {id}})
	if !strings.Contains(body, `class="flash"`) {
		t.Fatalf("missing flash: %q", body)
	}
	resp, err := browser.Get(site.URL + "/todo-pilot")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if strings.Contains(readBody(t, resp), `class="flash"`) {
		t.Fatalf("flash shown twice")
	}
}

func TestRejectsBadRequests(t *testing.T) {
	site := newTestSite(t)
	browser := newBrowser(t)
	resp, _ := post(t, browser, site, "/todo-pilot/toggle", url.Values{"id": {"abc"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}
	resp, err := browser.Get(site.URL + "/todo-pilot/add")
	if err != nil {
		t.Fatalf("get add: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("GET add = %d allow=%q", resp.StatusCode, resp.Header.Get("Allow"))
	}
	resp, _ = post(t, browser, site, "/todo-pilot/add", url.Values{"text": {strings.Repeat("a", 8192)}})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized post status = %d", resp.StatusCode)
	}
}

func TestServerStartAndHealth(t *testing.T) {
	srv := NewServer(testSettings())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("second start must fail")
	}
	resp, err := http.Get(srv.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != string(StatusReady) || health.Version == "" {
		t.Fatalf("health = %+v", health)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if srv.Status() != StatusDraining || srv.Addr() != "" {
		t.Fatalf("after shutdown status=%s addr=%q", srv.Status(), srv.Addr())
	}
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("THINKPILOT_PORT", "9001")
	t.Setenv("THINKPILOT_HOST", "0.0.0.0")
	cfg := &config.Config{Settings: config.DefaultSettings()}
	cfg.Settings.Server.SessionTTL = "2m"
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", settings.Port)
	}
	if settings.Host != "0.0.0.0" {
		t.Fatalf("expected host override, got %s", settings.Host)
	}
	if settings.SessionTTL != 2*time.Minute {
		t.Fatalf("session ttl = %s", settings.SessionTTL)
	}
	if settings.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("max body = %d", settings.MaxBodyBytes)
	}
}

func TestMultilineTaskTextStaysOneJournalEntry(t *testing.T) {
	journal, err := logbook.New(filepath.Join(t.TempDir(), "journal.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	site := newTestSite(t, WithLogbook(journal))
	browser := newBrowser(t)
	post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"milk\n2026-01-01T00:00:00Z ERROR [admin] forged"}})
	lines, total := journal.Tail(10)
	if total != 2 {
		t.Fatalf("journal has %d entries, want session + add:\n%s", total, strings.Join(lines, "\n"))
	}
	if !strings.Contains(lines[1], "Task 1 added: milk 2026-01-01T00:00:00Z ERROR [admin] forged") {
		t.Fatalf("add entry = %q", lines[1])
	}
}

func TestZeroSettingsGetDefaults(t *testing.T) {
	srv := NewServer(Settings{})
	if srv.settings.MaxBodyBytes != DefaultMaxBodyBytes || srv.settings.Host != DefaultHost {
		t.Fatalf("settings not normalized: %+v", srv.settings)
	}
	if srv.settings.Port != 0 {
		t.Fatalf("port = %d, want 0 (ephemeral)", srv.settings.Port)
	}
	site := httptest.NewServer(srv.Handler())
	t.Cleanup(site.Close)
	browser := newBrowser(t)
	resp, _ := post(t, browser, site, "/todo-pilot/add", url.Values{"text": {"milk"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add status = %d", resp.StatusCode)
	}
	if snap := snapshot(t, browser, site); len(snap.Tasks) != 1 || snap.Tasks[0].Text != "milk" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
