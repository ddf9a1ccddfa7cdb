package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskbridge/internal/api"
	"github.com/shaiso/taskbridge/internal/artifact"
	"github.com/shaiso/taskbridge/internal/dispatch"
	"github.com/shaiso/taskbridge/internal/redeem"
	"github.com/shaiso/taskbridge/internal/repo"
	"github.com/shaiso/taskbridge/internal/scheduler"
)

const redeemType = "getmybonus_anycard"

func newAPIServer(t *testing.T) (string, *repo.MemoryStore) {
	t.Helper()

	store := repo.NewMemoryStore()
	blob, err := artifact.NewFSBlob(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBlob: %v", err)
	}
	artifacts := artifact.NewStore(artifact.Config{Repo: store, Blob: blob})
	d := dispatch.New(dispatch.Config{
		Store:     store,
		Artifacts: artifacts,
		Registry:  dispatch.NewRegistry(redeem.Config{}),
	})

	loop, err := scheduler.NewLoop(scheduler.Config{
		Name: "redeem-sync",
		Job: func(ctx context.Context) error {
			_, err := d.SyncGenerators(ctx)
			return err
		},
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	t.Cleanup(func() { loop.Stop() })

	h := api.NewHandler(api.Config{Dispatcher: d, Artifacts: artifacts, Sync: loop})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL, store
}

func runCLI(t *testing.T, baseURL string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	var jsonOutput bool

	root := &cobra.Command{Use: "taskbridge", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(baseURL) }
	outputFn := func() *Output { return NewOutputTo(jsonOutput, &stdout, &stderr) }

	root.AddCommand(
		NewTaskCmd(clientFn, outputFn),
		NewArtifactCmd(clientFn, outputFn),
		NewSyncCmd(clientFn, outputFn),
	)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestClient_TaskLifecycle(t *testing.T) {
	url, _ := newAPIServer(t)
	c := NewClient(url)

	if _, ok, err := c.ClaimTask(redeemType); err != nil || ok {
		t.Fatalf("expected empty queue, got ok=%v err=%v", ok, err)
	}

	created, err := c.CreateTask(redeemType, map[string]any{"cardNumber": json.Number("6006491234567890123")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != "READY" {
		t.Errorf("expected READY, got %s", created.Status)
	}
	if got := created.Payload["cardNumber"]; got != json.Number("6006491234567890123") {
		t.Errorf("card number lost precision: %v", got)
	}

	claimed, ok, err := c.ClaimTask(redeemType)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if claimed.ID != created.ID || claimed.Status != "IN_PROGRESS" {
		t.Errorf("unexpected claimed task: %+v", claimed)
	}

	failed, err := c.FailTask(claimed.ID, "captcha", nil)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if failed.Status != "FAILED" || failed.LastError != "captcha" {
		t.Errorf("unexpected failed task: %+v", failed)
	}

	tasks, err := c.ListTasks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(tasks))
	}

	if err := c.DeleteTask(created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = c.GetTask(created.ID)
	if err == nil || !strings.HasPrefix(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}
}

func TestClient_Artifacts(t *testing.T) {
	url, _ := newAPIServer(t)
	c := NewClient(url)

	task, err := c.CreateTask(redeemType, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	content := "card 6001 redeemed"
	a, err := c.UploadArtifact(task.ID, "receipt.txt", strings.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if a.SizeBytes != int64(len(content)) {
		t.Errorf("expected %d bytes, got %d", len(content), a.SizeBytes)
	}

	list, err := c.ListArtifacts(task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("unexpected artifacts: %+v", list)
	}

	var buf bytes.Buffer
	filename, err := c.DownloadArtifact(a.ID, &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if filename != "receipt.txt" || buf.String() != content {
		t.Errorf("unexpected download %q: %q", filename, buf.String())
	}
}

func TestCLI_TaskCommands(t *testing.T) {
	url, _ := newAPIServer(t)

	stdout, stderr, err := runCLI(t, url, "task", "create", "--type", redeemType, "--payload", `{"cardNumber":"111"}`, "--json")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(stderr, "Task created") {
		t.Errorf("expected success message, got %q", stderr)
	}
	var created TaskResponse
	if err := json.Unmarshal([]byte(stdout), &created); err != nil {
		t.Fatalf("decode create output: %v\n%s", err, stdout)
	}

	stdout, _, err = runCLI(t, url, "task", "claim", "--type", redeemType)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !strings.Contains(stdout, created.ID) || !strings.Contains(stdout, "IN_PROGRESS") {
		t.Errorf("unexpected claim output:\n%s", stdout)
	}

	_, stderr, err = runCLI(t, url, "task", "claim", "--type", redeemType)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !strings.Contains(stderr, "No tasks available") {
		t.Errorf("unexpected empty claim output %q", stderr)
	}

	if _, _, err := runCLI(t, url, "task", "complete", created.ID); err == nil {
		t.Error("complete without --result should fail")
	}

	stdout, _, err = runCLI(t, url, "task", "complete", created.ID, "--result", `{"card_number":"111","PIN":"0000"}`)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(stdout, "SUCCEEDED") {
		t.Errorf("unexpected complete output:\n%s", stdout)
	}

	stdout, _, err = runCLI(t, url, "task", "list", "--status", "succeeded")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, created.ID) {
		t.Errorf("expected task in list:\n%s", stdout)
	}

	_, _, err = runCLI(t, url, "task", "show", "not-a-uuid")
	if err == nil || !strings.Contains(err.Error(), "BAD_REQUEST") {
		t.Errorf("expected BAD_REQUEST, got %v", err)
	}
}

func TestCLI_ArtifactCommands(t *testing.T) {
	url, _ := newAPIServer(t)
	c := NewClient(url)
	task, err := c.CreateTask(redeemType, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "page.html")
	if err := os.WriteFile(src, []byte("<html>ok</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, url, "artifact", "upload", task.ID, src, "--json")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var a ArtifactResponse
	if err := json.Unmarshal([]byte(stdout), &a); err != nil {
		t.Fatalf("decode upload output: %v\n%s", err, stdout)
	}
	if a.Filename != "page.html" {
		t.Errorf("expected page.html, got %s", a.Filename)
	}

	stdout, _, err = runCLI(t, url, "artifact", "download", a.ID, "-o", "-")
	if err != nil {
		t.Fatalf("download to stdout: %v", err)
	}
	if stdout != "<html>ok</html>" {
		t.Errorf("unexpected content %q", stdout)
	}

	dst := filepath.Join(dir, "copy.html")
	if _, _, err := runCLI(t, url, "artifact", "download", a.ID, "-o", dst); err != nil {
		t.Fatalf("download to file: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "<html>ok</html>" {
		t.Errorf("unexpected file content %q (err %v)", data, err)
	}

	stdout, _, err = runCLI(t, url, "artifact", "list", task.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(stdout, a.ID) {
		t.Errorf("expected artifact in list:\n%s", stdout)
	}
}

func TestCLI_SyncCommands(t *testing.T) {
	url, store := newAPIServer(t)

	if _, err := redeem.NewFlagger(store, redeem.Config{}).Flag(context.Background(), redeem.Signal{CardNumber: "9001"}); err != nil {
		t.Fatalf("flag: %v", err)
	}

	stdout, _, err := runCLI(t, url, "sync", "start", "--duration", "1m", "--json")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var st SyncStatusResponse
	if err := json.Unmarshal([]byte(stdout), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running {
		t.Error("expected running loop")
	}

	// Первая итерация выполняется сразу и генерирует task для карты.
	deadline := time.Now().Add(2 * time.Second)
	for {
		tasks, err := store.Tasks().ListByType(context.Background(), redeemType)
		if err != nil {
			t.Fatal(err)
		}
		if len(tasks) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected generated task, got %d", len(tasks))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, _, err := runCLI(t, url, "sync", "stop"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	stdout, _, err = runCLI(t, url, "sync", "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := json.Unmarshal([]byte(stdout), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running {
		t.Error("expected stopped loop")
	}
}

func TestParseDocument(t *testing.T) {
	doc, err := parseDocument("payload", `{"cardNumber": 6006491234567890123}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["cardNumber"] != json.Number("6006491234567890123") {
		t.Errorf("unexpected value %v", doc["cardNumber"])
	}

	if doc, err := parseDocument("payload", "  "); err != nil || doc != nil {
		t.Errorf("expected nil document, got %v (err %v)", doc, err)
	}

	for _, raw := range []string{"[1,2]", "null", "{"} {
		if _, err := parseDocument("payload", raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}

	path := filepath.Join(t.TempDir(), "result.json")
	if err := os.WriteFile(path, []byte(`{"card_number":"1"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err = parseDocument("result", "@"+path)
	if err != nil || doc["card_number"] != "1" {
		t.Errorf("unexpected file document %v (err %v)", doc, err)
	}
}
