package cli

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"
)

// callbackResult is what the server put on the redirect back to us.
type callbackResult struct {
	Session string
	Denied  bool
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>QuestLog</title></head>
<body><p>{{if .Denied}}Login was cancelled.{{else}}You are logged in to QuestLog.{{end}}
You can close this window and return to the terminal.</p></body></html>`))

// callbackServer is a one-shot listener on a loopback IP. The server only
// hands the session token to http URLs on loopback IP literals, so it must
// not advertise itself as "localhost".
//
// The callback URL carries a random state value. Requests without it are
// rejected and do not consume the server, so only the login this process
// started can complete it.
type callbackServer struct {
	server   *http.Server
	listener net.Listener
	url      string
	state    string
	resultCh chan callbackResult
	once     sync.Once
}

func startCallbackServer(ctx context.Context) (*callbackServer, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating callback state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	s := &callbackServer{
		listener: listener,
		url:      fmt.Sprintf("http://%s/callback?state=%s", listener.Addr().String(), state),
		state:    state,
		resultCh: make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.once.Do(func() { close(s.resultCh) })
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	return s, nil
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != s.state {
		http.Error(w, "Unknown login attempt", http.StatusBadRequest)
		return
	}
	result := callbackResult{
		Session: q.Get("session"),
		Denied:  q.Get("auth") == "denied",
	}

	handled := false
	s.once.Do(func() {
		handled = true
		s.resultCh <- result
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	callbackPage.Execute(w, result)
}

// wait blocks until the browser comes back or ctx is done.
func (s *callbackServer) wait(ctx context.Context) (callbackResult, error) {
	select {
	case result, ok := <-s.resultCh:
		if !ok {
			return callbackResult{}, errors.New("callback server stopped unexpectedly")
		}
		return result, nil
	case <-ctx.Done():
		return callbackResult{}, ctx.Err()
	}
}

func (s *callbackServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
