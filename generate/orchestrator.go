package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/conversation"
)

// Params are the sampling settings of one request.
type Params struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64
	Seed             *int
}

// ParamsFrom converts a config sampling section, honoring $CODELET_MODEL.
func ParamsFrom(s codelet.Sampling) Params {
	return Params{
		Model:            codelet.ResolveModel(s),
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		PresencePenalty:  s.PresencePenalty,
		FrequencyPenalty: s.FrequencyPenalty,
		Seed:             s.Seed,
	}
}

// Reply is delivered once per Send.
type Reply struct {
	// Seq is the sequence number returned by Send.
	Seq uint64
	// Content is the text the placeholder was resolved with: the first
	// choice's content on success or an "Error: ..." line on failure.
	Content string
	// Err is the transport or status error, if any.
	Err error
	// Stale reports that the placeholder was superseded or reset before
	// the reply arrived, so the session was left unchanged.
	Stale bool
}

// Orchestrator dispatches conversation turns to the model asynchronously.
type Orchestrator struct {
	client     Client
	historyCap int
	timeout    time.Duration

	// Deliver runs reply callbacks in the caller's chosen context.
	// The default is to call them on the worker goroutine.
	Deliver func(func())
}

// NewOrchestrator creates an orchestrator. Non-positive historyCap and
// timeout select the defaults.
func NewOrchestrator(client Client, historyCap int, timeout time.Duration) *Orchestrator {
	if historyCap < 1 {
		historyCap = conversation.DefaultCap
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{client: client, historyCap: historyCap, timeout: timeout}
}

// Send appends text and a placeholder to sess and returns right away with
// the request's sequence number. The model call runs on its own goroutine
// and done is invoked exactly once through Deliver when it finishes.
func (o *Orchestrator) Send(ctx context.Context, sess *conversation.Session, text string, params Params, done func(Reply)) uint64 {
	pending := sess.Exchange(text)
	go o.run(ctx, sess, pending, params, done)
	return pending.Seq
}

func (o *Orchestrator) run(ctx context.Context, sess *conversation.Session, pending conversation.Pending, params Params, done func(Reply)) {
	reply := Reply{Seq: pending.Seq}

	req := &RequestConfig{
		Model:            params.Model,
		Messages:         sess.Windowed(o.historyCap),
		MaxTokens:        params.MaxTokens,
		Temperature:      params.Temperature,
		TopP:             params.TopP,
		PresencePenalty:  params.PresencePenalty,
		FrequencyPenalty: params.FrequencyPenalty,
		Seed:             params.Seed,
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	body, err := o.client.Do(reqCtx, req)
	cancel()

	if err == nil {
		reply.Content, err = ParseContent(body)
		if err != nil {
			slog.Warn("unusable response body", "error", err, "body", truncate(string(body), 512))
		}
	}
	if err != nil {
		reply.Err = err
		reply.Content = errorText(err)
		slog.Debug("generation failed", "seq", pending.Seq, "error", err)
	}

	if !sess.Resolve(pending, reply.Content) {
		reply.Stale = true
		slog.Debug("discarding stale reply", "seq", pending.Seq, "latest", sess.Latest())
	}

	if done == nil {
		return
	}
	deliver := o.Deliver
	if deliver == nil {
		deliver = func(f func()) { f() }
	}
	deliver(func() { done(reply) })
}

// errorText formats a failure the way it is stored in the conversation.
func errorText(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("Error: %d - %s", se.Code, se.Message)
	}
	return "Error: " + err.Error()
}
