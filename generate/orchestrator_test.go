package generate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/conversation"
)

// stubClient returns canned results and records requests.
type stubClient struct {
	mu    sync.Mutex
	reqs  []*RequestConfig
	body  []byte
	err   error
	gate  chan struct{} // when non-nil, Do blocks until it is closed
	calls atomic.Int32
}

func (s *stubClient) Do(ctx context.Context, req *RequestConfig) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.body, s.err
}

func (s *stubClient) lastRequest() *RequestConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

func waitReply(t *testing.T, ch <-chan Reply) Reply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return Reply{}
	}
}

func TestOrchestratorSendResolves(t *testing.T) {
	client := &stubClient{body: []byte(okBody)}
	o := NewOrchestrator(client, 6, time.Second)
	sess := conversation.Begin("sys")

	replies := make(chan Reply, 1)
	seq := o.Send(context.Background(), sess, "hello", Params{Model: "m"}, func(r Reply) { replies <- r })
	r := waitReply(t, replies)

	if r.Seq != seq {
		t.Errorf("expected seq %d, got %d", seq, r.Seq)
	}
	if r.Err != nil || r.Stale {
		t.Errorf("unexpected reply %+v", r)
	}
	if r.Content != "hi" {
		t.Errorf("expected %q, got %q", "hi", r.Content)
	}
	msgs := sess.Messages()
	if len(msgs) != 3 || msgs[2].Content != "hi" {
		t.Errorf("expected resolved history, got %+v", msgs)
	}

	req := client.lastRequest()
	if len(req.Messages) != 2 {
		t.Fatalf("expected system + user in request, got %d messages", len(req.Messages))
	}
	if req.Messages[1].Role != codelet.RoleUser || req.Messages[1].Content != "hello" {
		t.Errorf("unexpected outbound message %+v", req.Messages[1])
	}
	if req.Model != "m" {
		t.Errorf("expected model m, got %q", req.Model)
	}
}

func TestOrchestratorErrorFormats(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transport", errors.New("connection refused"), "Error: connection refused"},
		{"status", &StatusError{Code: 503, Message: "Service Unavailable"}, "Error: 503 - Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(&stubClient{err: tt.err}, 0, 0)
			sess := conversation.Begin("sys")
			replies := make(chan Reply, 1)
			o.Send(context.Background(), sess, "q", Params{}, func(r Reply) { replies <- r })
			r := waitReply(t, replies)
			if r.Content != tt.want {
				t.Errorf("expected %q, got %q", tt.want, r.Content)
			}
			if !errors.Is(r.Err, tt.err) {
				t.Errorf("expected original error, got %v", r.Err)
			}
			if got := sess.Messages()[2].Content; got != tt.want {
				t.Errorf("expected history to hold %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOrchestratorMalformedBody(t *testing.T) {
	o := NewOrchestrator(&stubClient{body: []byte("<html>")}, 0, 0)
	sess := conversation.Begin("sys")
	replies := make(chan Reply, 1)
	o.Send(context.Background(), sess, "q", Params{}, func(r Reply) { replies <- r })
	r := waitReply(t, replies)
	if r.Err == nil {
		t.Error("expected parse error")
	}
	if len(r.Content) < 7 || r.Content[:7] != "Error: " {
		t.Errorf("expected error text, got %q", r.Content)
	}
}

func TestOrchestratorStaleAfterReset(t *testing.T) {
	client := &stubClient{body: []byte(okBody), gate: make(chan struct{})}
	o := NewOrchestrator(client, 6, time.Second)
	sess := conversation.Begin("sys")

	replies := make(chan Reply, 1)
	o.Send(context.Background(), sess, "q", Params{}, func(r Reply) { replies <- r })
	sess.Reset()
	close(client.gate)

	r := waitReply(t, replies)
	if !r.Stale {
		t.Error("expected stale reply after reset")
	}
	if sess.Len() != 1 {
		t.Errorf("expected only system message, got %d", sess.Len())
	}
}

func TestOrchestratorSupersededReply(t *testing.T) {
	client := &stubClient{body: []byte(okBody), gate: make(chan struct{})}
	o := NewOrchestrator(client, 6, time.Second)
	sess := conversation.Begin("sys")

	replies := make(chan Reply, 2)
	first := o.Send(context.Background(), sess, "one", Params{}, func(r Reply) { replies <- r })
	second := o.Send(context.Background(), sess, "two", Params{}, func(r Reply) { replies <- r })
	close(client.gate)

	got := map[uint64]Reply{}
	for range 2 {
		r := waitReply(t, replies)
		got[r.Seq] = r
	}
	if !got[first].Stale {
		t.Error("expected first reply to be stale")
	}
	if got[second].Stale {
		t.Error("expected second reply to resolve")
	}
}

func TestOrchestratorSendDoesNotBlock(t *testing.T) {
	client := &stubClient{body: []byte(okBody), gate: make(chan struct{})}
	defer close(client.gate)
	o := NewOrchestrator(client, 6, 5*time.Second)
	sess := conversation.Begin("sys")

	returned := make(chan struct{})
	go func() {
		o.Send(context.Background(), sess, "q", Params{}, nil)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on the network call")
	}
	if got := sess.Messages()[2].Content; got != conversation.PlaceholderText {
		t.Errorf("expected placeholder, got %q", got)
	}
}

func TestOrchestratorTimeout(t *testing.T) {
	client := &stubClient{gate: make(chan struct{})}
	defer close(client.gate)
	o := NewOrchestrator(client, 6, 20*time.Millisecond)
	sess := conversation.Begin("sys")

	replies := make(chan Reply, 1)
	o.Send(context.Background(), sess, "q", Params{}, func(r Reply) { replies <- r })
	r := waitReply(t, replies)
	if !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", r.Err)
	}
}

func TestOrchestratorDeliver(t *testing.T) {
	o := NewOrchestrator(&stubClient{body: []byte(okBody)}, 6, time.Second)
	queue := make(chan func(), 1)
	o.Deliver = func(f func()) { queue <- f }

	var calls atomic.Int32
	o.Send(context.Background(), conversation.Begin("sys"), "q", Params{}, func(Reply) { calls.Add(1) })

	select {
	case f := <-queue:
		if calls.Load() != 0 {
			t.Error("callback ran before the consumer executed it")
		}
		f()
	case <-time.After(2 * time.Second):
		t.Fatal("nothing delivered")
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one callback, got %d", calls.Load())
	}
}

func TestOrchestratorWindowsHistory(t *testing.T) {
	client := &stubClient{body: []byte(okBody)}
	o := NewOrchestrator(client, 4, time.Second)
	sess := conversation.Begin("sys")

	for i := range 5 {
		replies := make(chan Reply, 1)
		o.Send(context.Background(), sess, string(rune('a'+i)), Params{}, func(r Reply) { replies <- r })
		waitReply(t, replies)
	}
	req := client.lastRequest()
	if len(req.Messages) != 4 {
		t.Fatalf("expected windowed request of 4, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != codelet.RoleSystem {
		t.Errorf("expected system first, got %q", req.Messages[0].Role)
	}
	if last := req.Messages[3]; last.Role != codelet.RoleUser || last.Content != "e" {
		t.Errorf("expected latest user message last, got %+v", last)
	}
	if sess.Len() != 11 {
		t.Errorf("expected full history kept, got %d", sess.Len())
	}
}

func TestParamsFrom(t *testing.T) {
	t.Setenv("CODELET_MODEL", "")
	seed := 3
	p := ParamsFrom(codelet.Sampling{Model: "x", MaxTokens: 10, Temperature: 0.1, Seed: &seed})
	if p.Model != "x" || p.MaxTokens != 10 || p.Temperature != 0.1 || p.Seed != &seed {
		t.Errorf("unexpected params %+v", p)
	}
	t.Setenv("CODELET_MODEL", "override")
	if p := ParamsFrom(codelet.Sampling{Model: "x"}); p.Model != "override" {
		t.Errorf("expected env override, got %q", p.Model)
	}
}
