package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/questlog/internal/session"
)

const testToken = "tok-1"

// fakeServer mimics the QuestLog API closely enough for the CLI.
type fakeServer struct {
	*httptest.Server
	deny        bool
	logoutCalls atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/oidc", func(w http.ResponseWriter, r *http.Request) {
		target, err := url.Parse(r.URL.Query().Get("return_to"))
		if err != nil {
			http.Error(w, "bad return_to", http.StatusBadRequest)
			return
		}
		q := target.Query()
		if fs.deny {
			q.Set("auth", "denied")
		} else {
			q.Set("oauth", "1")
			q.Set("session", testToken)
		}
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.String(), http.StatusSeeOther)
	})
	mux.HandleFunc("GET /api/auth/current_user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"userId":"u1","name":"Ada","level":3,"xp":120,"tasksCompleted":4}`))
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		fs.logoutCalls.Add(1)
		w.Write([]byte(`{"message":"logged out"}`))
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

type testCLI struct {
	dir        string
	configPath string
	statePath  string
	opened     atomic.Int32
}

func newTestCLI(t *testing.T, apiBase string) *testCLI {
	t.Helper()
	t.Setenv("QUESTLOG_API_BASE", "")
	t.Setenv("QUESTLOG_STATE_PATH", "")

	dir := t.TempDir()
	tc := &testCLI{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		statePath:  filepath.Join(dir, "state.json"),
	}
	cfg := "api_base: " + apiBase + "\nlogin_timeout: 5s\n"
	require.NoError(t, os.WriteFile(tc.configPath, []byte(cfg), 0o600))
	return tc
}

// run executes one command. The fake browser follows the login URL the way
// a real one would.
func (tc *testCLI) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{
		out:    &out,
		errOut: io.Discard,
		openBrowser: func(u string) error {
			tc.opened.Add(1)
			go func() {
				resp, err := http.Get(u)
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		},
	}
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--config", tc.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (tc *testCLI) store(t *testing.T) *session.FileStore {
	t.Helper()
	s, err := session.OpenFileStore(tc.statePath)
	require.NoError(t, err)
	return s
}

func TestStatus_NotLoggedIn(t *testing.T) {
	srv := newFakeServer(t)
	tc := newTestCLI(t, srv.URL+"/api")

	out, err := tc.run(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
	assert.NotContains(t, out, "Warning")
}

func TestLoginThenStatusThenLogout(t *testing.T) {
	srv := newFakeServer(t)
	tc := newTestCLI(t, srv.URL+"/api")

	out, err := tc.run(t, "login")
	require.NoError(t, err)
	assert.Equal(t, int32(1), tc.opened.Load())
	assert.Contains(t, out, srv.URL+"/api/auth/oidc?return_to=")
	assert.Contains(t, out, "Logged in as Ada (u1)")

	v, ok := tc.store(t).Get(session.KeySession)
	require.True(t, ok)
	assert.Equal(t, testToken, v)

	out, err = tc.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ada (u1)")
	assert.Contains(t, out, "level 3, 120 XP, 4 tasks completed")

	out, err = tc.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")
	assert.Equal(t, int32(1), srv.logoutCalls.Load())

	_, ok = tc.store(t).Get(session.KeySession)
	assert.False(t, ok)

	out, err = tc.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestLogin_NoBrowserFlag(t *testing.T) {
	srv := newFakeServer(t)
	tc := newTestCLI(t, srv.URL+"/api")
	require.NoError(t, os.WriteFile(tc.configPath,
		[]byte("api_base: "+srv.URL+"/api\nlogin_timeout: 100ms\n"), 0o600))

	out, err := tc.run(t, "login", "--no-browser")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Zero(t, tc.opened.Load())
	assert.Contains(t, out, "Open this URL to log in")
}

func TestLogin_Denied(t *testing.T) {
	srv := newFakeServer(t)
	srv.deny = true
	tc := newTestCLI(t, srv.URL+"/api")

	_, err := tc.run(t, "login")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
	_, ok := tc.store(t).Get(session.KeySession)
	assert.False(t, ok)
}

func TestStatus_LegacyCredentialsWarning(t *testing.T) {
	srv := newFakeServer(t)
	tc := newTestCLI(t, srv.URL+"/api")
	require.NoError(t, tc.store(t).Set(session.KeyLegacyToken, "abc"))

	out, err := tc.run(t, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
	assert.Contains(t, out, "Warning: the state file holds credentials from an older questlog")

	_, err = tc.run(t, "logout")
	require.NoError(t, err)
	out, err = tc.run(t, "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "Warning")
}

func TestLogout_ServerUnreachable(t *testing.T) {
	srv := newFakeServer(t)
	tc := newTestCLI(t, srv.URL+"/api")
	require.NoError(t, tc.store(t).Set(session.KeySession, testToken))
	srv.Close()

	out, err := tc.run(t, "logout")

	require.Error(t, err)
	assert.Contains(t, out, "Logged out")
	_, ok := tc.store(t).Get(session.KeySession)
	assert.False(t, ok)
}

func TestCallbackServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cb, err := startCallbackServer(ctx)
	require.NoError(t, err)
	defer cb.stop()

	u, err := url.Parse(cb.url)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", u.Hostname())

	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	base := "http://" + u.Host + "/callback"
	for _, forged := range []string{"?session=evil", "?state=guess&session=evil"} {
		resp, err := http.Get(base + forged)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, forged)
	}

	resp, err := http.Get(cb.url + "&oauth=1&session=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-referrer", resp.Header.Get("Referrer-Policy"))

	result, err := cb.wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Session)
	assert.False(t, result.Denied)

	resp, err = http.Get(cb.url + "&session=other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackServer_WaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cb, err := startCallbackServer(context.Background())
	require.NoError(t, err)
	defer cb.stop()

	_, err = cb.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
