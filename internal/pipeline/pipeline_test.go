// ABOUTME: Tests for pipeline orchestration: ordering, fault isolation, stats
// ABOUTME: Uses small scripted stages to drive the chain

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
)

// fakeStage is a scripted stage for pipeline tests.
type fakeStage struct {
	name    string
	order   int
	enabled bool
	process func(ctx context.Context, req *Request) (*Request, *Rejection)
	calls   int
}

func (f *fakeStage) Name() string  { return f.name }
func (f *fakeStage) Order() int    { return f.order }
func (f *fakeStage) Enabled() bool { return f.enabled }
func (f *fakeStage) Process(ctx context.Context, req *Request) (*Request, *Rejection) {
	f.calls++
	if f.process == nil {
		return req, nil
	}
	return f.process(ctx, req)
}

func testRequest() *Request {
	return &Request{
		ID:         "req-1",
		Source:     message.PlatformHTTP,
		ReceivedAt: time.Now(),
		UserID:     "alice",
		Content:    "hello",
	}
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var seen []string
	mk := func(name string, order int) *fakeStage {
		return &fakeStage{name: name, order: order, enabled: true,
			process: func(ctx context.Context, req *Request) (*Request, *Rejection) {
				seen = append(seen, name)
				return req, nil
			}}
	}

	// Registration order deliberately scrambled.
	p := New(nil, []Stage{mk("third", 30), mk("first", 10), mk("second", 20)})

	_, rejection := p.Admit(context.Background(), testRequest())
	require.Nil(t, rejection)
	assert.Equal(t, []string{"first", "second", "third"}, seen)
}

func TestPipeline_RejectionStopsChain(t *testing.T) {
	rejecting := &fakeStage{name: "reject", order: 10, enabled: true,
		process: func(ctx context.Context, req *Request) (*Request, *Rejection) {
			return nil, &Rejection{Code: CodeValidation, Message: "no", Status: 400}
		}}
	after := &fakeStage{name: "after", order: 20, enabled: true}

	p := New(nil, []Stage{rejecting, after})
	out, rejection := p.Admit(context.Background(), testRequest())

	assert.Nil(t, out)
	require.NotNil(t, rejection)
	assert.Equal(t, CodeValidation, rejection.Code)
	assert.Zero(t, after.calls)
}

func TestPipeline_DisabledStageSkipped(t *testing.T) {
	disabled := &fakeStage{name: "disabled", order: 10, enabled: false}
	active := &fakeStage{name: "active", order: 20, enabled: true}

	p := New(nil, []Stage{disabled, active})
	_, rejection := p.Admit(context.Background(), testRequest())

	require.Nil(t, rejection)
	assert.Zero(t, disabled.calls)
	assert.Equal(t, 1, active.calls)
}

func TestPipeline_PanicBecomesInternalError(t *testing.T) {
	panicking := &fakeStage{name: "boom", order: 10, enabled: true,
		process: func(ctx context.Context, req *Request) (*Request, *Rejection) {
			panic("stage bug")
		}}

	p := New(nil, []Stage{panicking})

	out, rejection := p.Admit(context.Background(), testRequest())
	assert.Nil(t, out)
	require.NotNil(t, rejection)
	assert.Equal(t, CodeInternalError, rejection.Code)
	assert.Equal(t, 500, rejection.Status)
	// The raw panic value stays inside the pipeline.
	assert.NotContains(t, rejection.Message, "stage bug")

	// The pipeline itself keeps serving after a stage fault.
	stable := &fakeStage{name: "ok", order: 10, enabled: true}
	p2 := New(nil, []Stage{stable})
	_, rejection = p2.Admit(context.Background(), testRequest())
	assert.Nil(t, rejection)
}

func TestPipeline_StagesReplaceNotMutate(t *testing.T) {
	replacing := &fakeStage{name: "replace", order: 10, enabled: true,
		process: func(ctx context.Context, req *Request) (*Request, *Rejection) {
			out := req.Clone()
			out.Content = "rewritten"
			return out, nil
		}}

	p := New(nil, []Stage{replacing})
	in := testRequest()
	out, rejection := p.Admit(context.Background(), in)

	require.Nil(t, rejection)
	assert.Equal(t, "hello", in.Content)
	assert.Equal(t, "rewritten", out.Content)
}

func TestPipeline_Stats(t *testing.T) {
	rejecting := &fakeStage{name: "gate", order: 10, enabled: true,
		process: func(ctx context.Context, req *Request) (*Request, *Rejection) {
			if req.UserID == "blocked" {
				return nil, &Rejection{Code: CodeValidation, Status: 400}
			}
			return req, nil
		}}

	p := New(nil, []Stage{rejecting})
	ctx := context.Background()

	_, rej := p.Admit(ctx, testRequest())
	require.Nil(t, rej)
	blocked := testRequest()
	blocked.UserID = "blocked"
	_, rej = p.Admit(ctx, blocked)
	require.NotNil(t, rej)

	snap := p.Stats()
	assert.Equal(t, int64(2), snap.Requests)
	assert.Equal(t, int64(1), snap.Accepted)
	assert.Equal(t, int64(1), snap.Rejected)
	assert.Equal(t, int64(0), snap.Active)

	require.Len(t, snap.Stages, 1)
	gate := snap.Stages[0]
	assert.Equal(t, "gate", gate.Name)
	assert.Equal(t, int64(2), gate.Calls)
	assert.Equal(t, int64(1), gate.Rejections)
}
