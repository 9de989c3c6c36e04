package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	solrpc "github.com/gagliardetto/solana-go/rpc"
)

func TestNewPoolRequiresEndpoints(t *testing.T) {
	if _, err := NewPool(nil); err == nil {
		t.Fatal("expected error for empty endpoint list")
	}
}

func TestDoFailsOverToBackup(t *testing.T) {
	p, err := NewPool([]string{"https://primary.example.com", "https://backup.example.com"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	// Endpoints are tried in list order, so attempt 0 is the primary.
	attempt := 0
	errPrimary := errors.New("primary down")
	op := func(ctx context.Context, client *solrpc.Client) error {
		defer func() { attempt++ }()
		if attempt == 0 {
			return errPrimary
		}
		return nil
	}

	if err := p.Do(context.Background(), op); err != nil {
		t.Fatalf("expected backup to succeed, got %v", err)
	}
	if attempt != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempt)
	}
}

func TestDoMarksPrimaryUnhealthy(t *testing.T) {
	p, err := NewPool([]string{"https://primary.example.com", "https://backup.example.com"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	// Fail the first attempt of each Do; after maxErrors rounds the primary
	// must be demoted.
	for i := 0; i < defaultMaxConsecutiveErrors; i++ {
		attempt := 0
		op := func(ctx context.Context, client *solrpc.Client) error {
			defer func() { attempt++ }()
			if attempt == 0 {
				return errors.New("primary down")
			}
			return nil
		}
		if err := p.Do(context.Background(), op); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}

	snap := p.Snapshot()
	if snap[0].Healthy {
		t.Error("primary should be unhealthy after consecutive failures")
	}
	if !snap[1].Healthy {
		t.Error("backup should stay healthy")
	}

	// With the primary demoted, the backup is tried first.
	var firstTried bool
	op := func(ctx context.Context, client *solrpc.Client) error {
		if !firstTried {
			firstTried = true
			return nil
		}
		return errors.New("should not reach second endpoint")
	}
	if err := p.Do(context.Background(), op); err != nil {
		t.Fatalf("Do after demotion: %v", err)
	}
}

func TestDoExhaustsAllEndpoints(t *testing.T) {
	p, err := NewPool([]string{"https://a.example.com", "https://b.example.com", "https://c.example.com"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	attempts := 0
	opErr := errors.New("down")
	err = p.Do(context.Background(), func(ctx context.Context, client *solrpc.Client) error {
		attempts++
		return opErr
	})

	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected one attempt per endpoint, got %d", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	p, err := NewPool([]string{"https://a.example.com", "https://b.example.com"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err = p.Do(ctx, func(ctx context.Context, client *solrpc.Client) error {
		attempts++
		cancel()
		return ctx.Err()
	})

	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if attempts != 1 {
		t.Errorf("must not fail over after the caller cancels, got %d attempts", attempts)
	}

	// A cancelled attempt must not count against endpoint health.
	if snap := p.Snapshot(); snap[0].ConsecutiveErrs != 0 {
		t.Errorf("cancellation should not be charged to the endpoint, got %d errors", snap[0].ConsecutiveErrs)
	}
}

func TestObserverSeesFailover(t *testing.T) {
	p, err := NewPool([]string{"https://primary.example.com", "https://backup.example.com"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	obs := &recordingObserver{}
	p.SetObserver(obs)

	attempt := 0
	_ = p.Do(context.Background(), func(ctx context.Context, client *solrpc.Client) error {
		defer func() { attempt++ }()
		if attempt == 0 {
			return errors.New("down")
		}
		return nil
	})

	if len(obs.failovers) != 1 {
		t.Fatalf("expected 1 failover event, got %d", len(obs.failovers))
	}
	if obs.failovers[0] != "https://primary.example.com->https://backup.example.com" {
		t.Errorf("unexpected failover event: %s", obs.failovers[0])
	}
	if len(obs.results) != 2 {
		t.Errorf("expected 2 rpc results, got %d", len(obs.results))
	}
}

func TestStartStopProbe(t *testing.T) {
	p, err := NewPool([]string{"https://a.example.com"})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	p.SetProbeInterval(time.Hour) // never fires during the test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	p.Start(ctx) // idempotent
	p.Stop()
	p.Stop() // idempotent

	// Give the probe goroutine a moment to observe stopCh.
	time.Sleep(10 * time.Millisecond)
}

type recordingObserver struct {
	results   []string
	failovers []string
}

func (r *recordingObserver) RPCResult(url string, ok bool, latency time.Duration) {
	r.results = append(r.results, fmt.Sprintf("%s:%v", url, ok))
}

func (r *recordingObserver) Failover(from, to string) {
	r.failovers = append(r.failovers, from+"->"+to)
}
