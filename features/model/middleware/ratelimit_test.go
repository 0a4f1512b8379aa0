package middleware

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/moneywise-vn/advisor/runtime/advisor/model"
)

type stubClient struct {
	completeErr error
	streamErr   error
	calls       int
}

func (c *stubClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	c.calls++
	return &model.Response{Content: "ok"}, c.completeErr
}

func (c *stubClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	c.calls++
	return nil, c.streamErr
}

func smallRequest() *model.Request {
	return &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}
}

func TestMiddlewareDelegates(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(600000, 600000)
	next := &stubClient{}
	client := limiter.Middleware()(next)

	resp, err := client.Complete(context.Background(), smallRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d", next.calls)
	}
}

func TestBackoffOnRateLimit(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	next := &stubClient{streamErr: fmt.Errorf("%w: 429", model.ErrRateLimited)}
	client := limiter.Middleware()(next)

	before := limiter.currentTPM
	_, err := client.Stream(context.Background(), smallRequest())
	if err == nil {
		t.Fatal("expected rate limit error to propagate")
	}
	if limiter.currentTPM >= before {
		t.Errorf("tpm = %v, want below %v after backoff", limiter.currentTPM, before)
	}
	if want := before * 0.5; limiter.currentTPM != want {
		t.Errorf("tpm = %v, want %v", limiter.currentTPM, want)
	}
}

func TestBackoffRespectsFloor(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	next := &stubClient{streamErr: fmt.Errorf("%w: 429", model.ErrRateLimited)}
	client := limiter.Middleware()(next)

	for i := 0; i < 5; i++ {
		_, _ = client.Stream(context.Background(), smallRequest())
	}
	if limiter.currentTPM != limiter.minTPM {
		t.Errorf("tpm = %v, want floor %v", limiter.currentTPM, limiter.minTPM)
	}
}

func TestProbeRecoversAfterSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	limiter.backoff()
	backedOff := limiter.currentTPM

	next := &stubClient{}
	client := limiter.Middleware()(next)
	if _, err := client.Complete(context.Background(), smallRequest()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if limiter.currentTPM <= backedOff {
		t.Errorf("tpm = %v, want above %v after probe", limiter.currentTPM, backedOff)
	}
}

func TestProbeCapsAtMax(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	next := &stubClient{}
	client := limiter.Middleware()(next)

	for i := 0; i < 5; i++ {
		if _, err := client.Complete(context.Background(), smallRequest()); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if limiter.currentTPM != limiter.maxTPM {
		t.Errorf("tpm = %v, want cap %v", limiter.currentTPM, limiter.maxTPM)
	}
}

func TestNonRateLimitErrorDoesNotBackoff(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(60000, 60000)
	next := &stubClient{streamErr: fmt.Errorf("connection reset")}
	client := limiter.Middleware()(next)

	before := limiter.currentTPM
	_, _ = client.Stream(context.Background(), smallRequest())
	if limiter.currentTPM < before {
		t.Errorf("tpm dropped to %v on a non-rate-limit error", limiter.currentTPM)
	}
}

func TestWaitFailureSkipsClient(t *testing.T) {
	// A budget smaller than the minimum token estimate can never admit a
	// request; the wait fails and the underlying client is never called.
	limiter := NewAdaptiveRateLimiter(60, 60)
	next := &stubClient{}
	client := limiter.Middleware()(next)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.Complete(ctx, smallRequest()); err == nil {
		t.Fatal("expected wait error")
	}
	if next.calls != 0 {
		t.Errorf("calls = %d, want 0", next.calls)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(&model.Request{}); got != 500 {
		t.Errorf("empty request = %d, want 500", got)
	}
	req := &model.Request{
		System:   "123456789",
		Messages: []model.Message{{Role: model.RoleUser, Content: "abc"}},
	}
	if got := estimateTokens(req); got != 504 {
		t.Errorf("estimate = %d, want 504", got)
	}
}
