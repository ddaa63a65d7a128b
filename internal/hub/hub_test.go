package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tracker/api/internal/store"

	"github.com/gorilla/websocket"
)

type fakeSubscriber struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
	sendFn func(payload []byte) error
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeSubscriber) Send(payload []byte) error {
	if f.sendFn != nil {
		if err := f.sendFn(payload); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeSubscriber) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, frame := range f.frames {
		var decoded struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(frame, &decoded); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, decoded.Type)
	}
	return out
}

type staticSource struct {
	mu     sync.Mutex
	issues []store.Issue
}

func (s *staticSource) All() []store.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Issue(nil), s.issues...)
}

func (s *staticSource) set(issues []store.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = issues
}

func sampleIssue(id int, title string) store.Issue {
	return store.Issue{
		ID:        id,
		Title:     title,
		Status:    store.StatusOpen,
		CreatedBy: "alice",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Comments:  []store.Comment{},
	}
}

func TestConnectSendsInitialDataFirst(t *testing.T) {
	source := &staticSource{issues: []store.Issue{sampleIssue(1, "Bug")}}
	h := New(source, true)
	sub := &fakeSubscriber{id: "a"}

	if err := h.Connect(sub); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var frame struct {
		Type             string        `json:"type"`
		Data             []store.Issue `json:"data"`
		GitHubConfigured bool          `json:"githubConfigured"`
	}
	if err := json.Unmarshal(sub.frames[0], &frame); err != nil {
		t.Fatalf("decode initial data: %v", err)
	}
	if frame.Type != "INITIAL_DATA" || len(frame.Data) != 1 || !frame.GitHubConfigured {
		t.Fatalf("unexpected initial frame: %+v", frame)
	}
	if h.Registry().Len() != 1 {
		t.Fatalf("expected subscriber to be registered")
	}
}

func TestConnectEmptyMirrorSendsEmptyArray(t *testing.T) {
	h := New(&staticSource{}, false)
	sub := &fakeSubscriber{id: "a"}
	if err := h.Connect(sub); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	want := `{"type":"INITIAL_DATA","data":[],"githubConfigured":false}`
	if string(sub.frames[0]) != want {
		t.Fatalf("initial frame = %s, want %s", sub.frames[0], want)
	}
}

func TestConnectFailureDoesNotRegister(t *testing.T) {
	h := New(&staticSource{}, false)
	sub := &fakeSubscriber{id: "a", sendFn: func([]byte) error { return errors.New("gone") }}

	if err := h.Connect(sub); err == nil {
		t.Fatal("expected Connect() error")
	}
	if h.Registry().Len() != 0 {
		t.Fatal("failed subscriber was registered")
	}
}

func TestBroadcastSkipsDroppedSubscribers(t *testing.T) {
	h := New(&staticSource{}, false)
	healthy := &fakeSubscriber{id: "a"}
	closed := &fakeSubscriber{id: "b"}
	failing := &fakeSubscriber{id: "c"}

	for _, sub := range []*fakeSubscriber{healthy, closed, failing} {
		if err := h.Connect(sub); err != nil {
			t.Fatalf("Connect(%s) error = %v", sub.id, err)
		}
	}
	closed.closed = true
	failing.sendFn = func([]byte) error { return errors.New("broken pipe") }

	h.Broadcast(IssueCreated(sampleIssue(1, "Bug")))
	h.Broadcast(SyncUpdate([]store.Issue{sampleIssue(1, "Bug")}))

	if got := healthy.types(t); strings.Join(got, ",") != "INITIAL_DATA,ISSUE_CREATED,SYNC_UPDATE" {
		t.Fatalf("healthy subscriber frames = %v", got)
	}
	if h.Registry().Len() != 1 {
		t.Fatalf("expected dropped subscribers to be pruned, registry has %d", h.Registry().Len())
	}
}

func TestBroadcastWithNoSubscribers(t *testing.T) {
	h := New(&staticSource{}, false)
	h.Broadcast(IssueCreated(sampleIssue(1, "Bug")))
}

func TestNewSubscriberSeesConsistentState(t *testing.T) {
	source := &staticSource{}
	h := New(source, false)

	var wg sync.WaitGroup
	subs := make([]*fakeSubscriber, 20)
	for i := range subs {
		subs[i] = &fakeSubscriber{id: string(rune('a' + i))}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 20; i++ {
			issues := make([]store.Issue, 0, i)
			for id := 1; id <= i; id++ {
				issues = append(issues, sampleIssue(id, "t"))
			}
			source.set(issues)
			h.Broadcast(SyncUpdate(issues))
		}
	}()
	go func() {
		defer wg.Done()
		for _, sub := range subs {
			if err := h.Connect(sub); err != nil {
				t.Errorf("Connect() error = %v", err)
			}
		}
	}()
	wg.Wait()

	for _, sub := range subs {
		types := sub.types(t)
		if len(types) == 0 || types[0] != "INITIAL_DATA" {
			t.Fatalf("subscriber %s first frame = %v, want INITIAL_DATA", sub.id, types)
		}
		var last struct {
			Data []store.Issue `json:"data"`
		}
		if err := json.Unmarshal(sub.frames[len(sub.frames)-1], &last); err != nil {
			t.Fatalf("decode last frame: %v", err)
		}
		if len(last.Data) != 20 {
			t.Fatalf("subscriber %s converged on %d issues, want 20", sub.id, len(last.Data))
		}
	}
}

func TestSendToTargetsOneSubscriber(t *testing.T) {
	h := New(&staticSource{}, false)
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	_ = h.Connect(a)
	_ = h.Connect(b)

	h.SendTo(a, CommentsFetched(4, nil))

	if got := a.types(t); len(got) != 2 || got[1] != "COMMENTS_FETCHED" {
		t.Fatalf("subscriber a frames = %v", got)
	}
	if got := b.types(t); len(got) != 1 {
		t.Fatalf("subscriber b frames = %v", got)
	}
	want := `{"type":"COMMENTS_FETCHED","issueId":4,"comments":[]}`
	if string(a.frames[1]) != want {
		t.Fatalf("frame = %s, want %s", a.frames[1], want)
	}
}

func TestServeOverWebsocket(t *testing.T) {
	source := &staticSource{issues: []store.Issue{sampleIssue(1, "Bug")}}
	h := New(source, false)

	received := make(chan string, 1)
	h.SetHandler(MessageHandlerFunc(func(ctx context.Context, sub Subscriber, payload []byte) {
		received <- string(payload)
		h.SendTo(sub, Error("MALFORMED_INTENT", "unknown type"))
	}))

	server := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))

	var frame map[string]any
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read initial data: %v", err)
	}
	if frame["type"] != "INITIAL_DATA" {
		t.Fatalf("first frame = %v", frame)
	}

	waitForSubscribers(t, h, 1)
	h.Broadcast(IssueCreated(sampleIssue(2, "Second")))
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if frame["type"] != "ISSUE_CREATED" {
		t.Fatalf("broadcast frame = %v", frame)
	}

	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOPE"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-received:
		if got != `{"type":"NOPE"}` {
			t.Fatalf("handler received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not called")
	}
	if err := client.ReadJSON(&frame); err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if frame["type"] != "ERROR" || frame["code"] != "MALFORMED_INTENT" {
		t.Fatalf("error frame = %v", frame)
	}

	_ = client.Close()
	waitForSubscribers(t, h, 0)
}

func TestSlowConnIsClosedInsteadOfBlocking(t *testing.T) {
	conn := newConn("slow", nil)
	for i := 0; i < sendQueueSize; i++ {
		if err := conn.Send([]byte("x")); err != nil {
			t.Fatalf("Send() %d error = %v", i, err)
		}
	}
	if err := conn.Send([]byte("x")); !errors.Is(err, ErrSlowSubscriber) {
		t.Fatalf("Send() on full queue error = %v, want ErrSlowSubscriber", err)
	}
	if conn.Open() {
		t.Fatal("expected slow subscriber to be closed")
	}
	if err := conn.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send() after close error = %v, want ErrClosed", err)
	}
}

func waitForSubscribers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.Registry().Len() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("registry has %d subscribers, want %d", h.Registry().Len(), want)
}

func TestServeRejectsForeignOrigin(t *testing.T) {
	h := New(&staticSource{}, false)
	h.SetHandler(MessageHandlerFunc(func(context.Context, Subscriber, []byte) {}))
	h.SetCheckOrigin(OriginChecker("https://tracker.example.com"))

	server := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.net"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		conn.Close()
		t.Fatal("dial with foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("handshake response = %v, want 403", resp)
	}
	if h.Registry().Len() != 0 {
		t.Fatalf("rejected connection was registered")
	}

	header = http.Header{"Origin": []string{"https://tracker.example.com"}}
	conn, _, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	conn.Close()
}

func TestOriginChecker(t *testing.T) {
	cases := []struct {
		name    string
		allowed string
		origin  string
		want    bool
	}{
		{name: "wildcard", allowed: "*", origin: "https://anywhere.test", want: true},
		{name: "exact match", allowed: "https://app.test", origin: "https://app.test", want: true},
		{name: "trailing slash", allowed: "https://app.test/", origin: "https://APP.test", want: true},
		{name: "foreign", allowed: "https://app.test", origin: "https://other.test", want: false},
		{name: "no origin header", allowed: "https://app.test", origin: "", want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if got := OriginChecker(tc.allowed)(req); got != tc.want {
				t.Fatalf("OriginChecker(%q)(%q) = %v, want %v", tc.allowed, tc.origin, got, tc.want)
			}
		})
	}
}
