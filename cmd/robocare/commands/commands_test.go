package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/robocare/cmd/robocare/internal/config"
	"github.com/haivivi/robocare/pkg/hostio"
)

// roboServer fakes the Robo FastAPI service.
type roboServer struct {
	*httptest.Server

	mu       sync.Mutex
	profiles []map[string]any
}

func newRoboServer(t *testing.T) *roboServer {
	t.Helper()
	rs := &roboServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user-context/", func(w http.ResponseWriter, r *http.Request) {
		var p map[string]any
		json.NewDecoder(r.Body).Decode(&p)
		rs.mu.Lock()
		rs.profiles = append(rs.profiles, p)
		rs.mu.Unlock()
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /detect-language/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"languageCode":"en-IN"}`))
	})
	mux.HandleFunc("POST /query/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question  string `json:"question"`
			EnableTTS bool   `json:"enable_tts"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]string{"answer": "you said: " + req.Question}
		if req.EnableTTS {
			resp["audio"] = base64.StdEncoding.EncodeToString([]byte("ID3-mp3"))
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /upload-image/", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image"); err != nil {
			http.Error(w, `{"detail":"image is required"}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"analysis":"a mild rash"}`))
	})
	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *roboServer) Profiles() []map[string]any {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]map[string]any(nil), rs.profiles...)
}

func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)
	globalConfig, configLoadErr = nil, nil
	return dir
}

// setupContext creates and selects a "test" context talking to rs.
func setupContext(t *testing.T, rs *roboServer) {
	t.Helper()
	setupTestEnv(t)
	for _, args := range [][]string{
		{"config", "add-context", "test"},
		{"config", "use-context", "test"},
		{"config", "set", "test", "robocare", "base_url", rs.URL},
		{"config", "set", "test", "robocare", "player", "none"},
	} {
		if _, stderr, code := runCmd(t, args...); code != 0 {
			t.Fatalf("%v: exit %d: %s", args, code, stderr)
		}
	}
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout, oldStderr := os.Stdout, os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout, os.Stderr = wOut, wErr

	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(&outBuf, rOut) }()
	go func() { defer wg.Done(); io.Copy(&errBuf, rErr) }()

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	wg.Wait()
	os.Stdout, os.Stderr = oldStdout, oldStderr

	stdout, stderr = outBuf.String(), errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	profileExtra = nil
	return
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)

	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "robocare") {
		t.Fatalf("expected 'robocare', got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, `"version"`) {
		t.Fatalf("expected JSON, got: %s", stdout)
	}
}

func TestConfigCommands(t *testing.T) {
	setupTestEnv(t)

	steps := []struct {
		args []string
		want string
		fail bool
	}{
		{args: []string{"config", "list-contexts"}, want: "No contexts configured"},
		{args: []string{"config", "add-context", "home"}, want: "created"},
		{args: []string{"config", "add-context", "home"}, fail: true},
		{args: []string{"config", "current-context"}, want: "No current context"},
		{args: []string{"config", "use-context", "home"}, want: "Switched"},
		{args: []string{"config", "use-context", "away"}, fail: true},
		{args: []string{"config", "current-context"}, want: "home"},
		{args: []string{"config", "set", "home", "robocare", "s3.bucket", "robo-audio"}, want: "Set robocare.s3.bucket"},
		{args: []string{"config", "set", "home", "robocare", "speed", "1.5"}},
		{args: []string{"config", "get", "home", "robocare", "s3.bucket"}, want: "robo-audio"},
		{args: []string{"config", "get", "home", "robocare", "speed"}, want: "1.5"},
		{args: []string{"config", "get", "home", "robocare", "missing"}, fail: true},
		{args: []string{"config", "set", "home", "../x", "k", "v"}, fail: true},
		{args: []string{"config", "list-contexts"}, want: "robocare"},
		{args: []string{"config", "delete-context", "home"}, want: "deleted"},
		{args: []string{"config", "current-context"}, want: "No current context"},
	}
	for _, st := range steps {
		stdout, stderr, code := runCmd(t, st.args...)
		if st.fail {
			if code == 0 {
				t.Errorf("%v: expected failure, got: %s", st.args, stdout)
			}
			continue
		}
		if code != 0 {
			t.Fatalf("%v: exit %d: %s", st.args, code, stderr)
		}
		if !strings.Contains(stdout, st.want) {
			t.Errorf("%v: output %q missing %q", st.args, stdout, st.want)
		}
	}
}

func TestAskRequiresContext(t *testing.T) {
	setupTestEnv(t)
	_, stderr, code := runCmd(t, "ask", "hello")
	if code == 0 || !strings.Contains(stderr, "no current context") {
		t.Errorf("exit %d, stderr %q", code, stderr)
	}
}

func TestAsk(t *testing.T) {
	rs := newRoboServer(t)
	setupContext(t, rs)

	stdout, stderr, code := runCmd(t, "ask", "--format", "raw", "--query", ".reply.text", "I", "feel", "dizzy")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if stdout != "you said: I feel dizzy\n" {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, stderr, code = runCmd(t, "ask", "hello")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Robo") || !strings.Contains(stdout, "you said: hello") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestAskSaveAudio(t *testing.T) {
	rs := newRoboServer(t)
	setupContext(t, rs)

	path := filepath.Join(t.TempDir(), "reply.mp3")
	_, stderr, code := runCmd(t, "ask", "--save-audio", path, "hello")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ID3-mp3" {
		t.Errorf("audio = %q", data)
	}
}

func TestImage(t *testing.T) {
	rs := newRoboServer(t)
	setupContext(t, rs)

	path := filepath.Join(t.TempDir(), "rash.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatal(err)
	}
	stdout, stderr, code := runCmd(t, "image", "--format", "raw", "--query", ".reply.text", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if stdout != "a mild rash\n" {
		t.Errorf("stdout = %q", stdout)
	}

	notImage := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(notImage, []byte("hello"), 0o644)
	if _, _, code := runCmd(t, "image", notImage); code == 0 {
		t.Error("image should reject a text file")
	}
}

func TestTranscript(t *testing.T) {
	rs := newRoboServer(t)
	setupContext(t, rs)

	if _, stderr, code := runCmd(t, "ask", "first question"); code != 0 {
		t.Fatalf("ask: exit %d: %s", code, stderr)
	}

	stdout, stderr, code := runCmd(t, "transcript", "list", "--format", "raw", "--query", ".[0].session")
	if code != 0 {
		t.Fatalf("list: exit %d: %s", code, stderr)
	}
	id := strings.TrimSpace(stdout)
	if id == "" {
		t.Fatal("no session listed")
	}

	stdout, _, code = runCmd(t, "transcript", "list", "--format", "json", "--query", ".[0].first")
	if code != 0 || strings.TrimSpace(stdout) != `"first question"` {
		t.Errorf("list first = %q (exit %d)", stdout, code)
	}

	stdout, stderr, code = runCmd(t, "transcript", "show", id, "--format", "raw", "--query", `.[] | select(.sender == "bot") | .text`)
	if code != 0 {
		t.Fatalf("show: exit %d: %s", code, stderr)
	}
	if stdout != "you said: first question\n" {
		t.Errorf("show = %q", stdout)
	}

	stdout, _, code = runCmd(t, "transcript", "show", id)
	if code != 0 || !strings.Contains(stdout, "first question") {
		t.Errorf("show rendered = %q (exit %d)", stdout, code)
	}

	if _, _, code := runCmd(t, "transcript", "show", "nope"); code == 0 {
		t.Error("show of unknown session should fail")
	}
	if _, stderr, code := runCmd(t, "transcript", "delete", id); code != 0 {
		t.Fatalf("delete: exit %d: %s", code, stderr)
	}
	stdout, _, _ = runCmd(t, "transcript", "list", "--format", "raw", "--query", "length")
	if strings.TrimSpace(stdout) != "0" {
		t.Errorf("sessions after delete = %q", stdout)
	}
}

func TestProfile(t *testing.T) {
	rs := newRoboServer(t)
	setupContext(t, rs)

	_, stderr, code := runCmd(t, "profile", "--age", "34", "--gender", "female", "--set", "diet=vegetarian")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	got := rs.Profiles()
	if len(got) != 1 || got[0]["age"] != "34" || got[0]["gender"] != "female" {
		t.Fatalf("submitted profiles = %v", got)
	}

	stdout, _, code := runCmd(t, "profile", "--format", "raw", "--query", ".extra.diet")
	if code != 0 || stdout != "vegetarian\n" {
		t.Errorf("profile show = %q (exit %d)", stdout, code)
	}

	file := filepath.Join(t.TempDir(), "p.yaml")
	os.WriteFile(file, []byte("goal: sleep better\n"), 0o644)
	if _, stderr, code := runCmd(t, "profile", "-f", file, "--no-submit"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if n := len(rs.Profiles()); n != 1 {
		t.Errorf("--no-submit still submitted (%d profiles)", n)
	}
	stdout, _, _ = runCmd(t, "profile", "--format", "raw", "--query", ".age + \"/\" + .goal")
	if stdout != "34/sleep better\n" {
		t.Errorf("merged profile = %q", stdout)
	}

	// A new session submits the saved profile.
	if _, stderr, code := runCmd(t, "ask", "hello"); code != 0 {
		t.Fatalf("ask: exit %d: %s", code, stderr)
	}
	got = rs.Profiles()
	if len(got) != 2 || got[1]["goal"] != "sleep better" {
		t.Errorf("profiles after ask = %v", got)
	}
}

func TestChatREPL(t *testing.T) {
	rs := newRoboServer(t)
	setupContext(t, rs)
	if _, stderr, code := runCmd(t, "config", "set", "test", "robocare", "journal_dir", "off"); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}

	ctx := context.Background()
	d := hostio.NewDictation()
	a, err := openApp(ctx, appOptions{Greeting: true, Recognizer: d})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)

	input := strings.Join([]string{
		"hello robo",
		"/lang tamil",
		"/mic",
		"feeling",
		"tired",
		"/send",
		"/mic",
		"/play 99",
		"/bogus",
		"/history",
		"/quit",
		"never sent",
	}, "\n")
	var out bytes.Buffer
	if err := newREPL(a, d, &out).run(ctx, strings.NewReader(input)); err != nil {
		t.Fatal(err)
	}

	text := out.String()
	for _, want := range []string{
		"Hi! I'm Robo",
		"you said: hello robo",
		"tamil",
		"feeling tired",
		"you said: feeling tired",
		"message #99 has no audio",
		"unknown command /bogus",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "never sent") {
		t.Error("lines after /quit were processed")
	}
	if n := len(a.Session.Messages()); n != 5 {
		t.Errorf("messages = %d, want 5", n)
	}
}

func TestLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8080", true},
		{"localhost:8080", true},
		{"[::1]:8080", true},
		{":8080", false},
		{"0.0.0.0:8080", false},
		{"192.168.1.20:9000", false},
		{"bad", false},
	}
	for _, tt := range tests {
		if got := loopback(tt.addr); got != tt.want {
			t.Errorf("loopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
