package processor

import (
	"context"
	"testing"
	"time"
)

type fakeRetentionStore struct {
	cutoffs []time.Time
	deleted int64
}

func (f *fakeRetentionStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, nil
}

func TestNewSweeperRejectsBadCron(t *testing.T) {
	if _, err := NewSweeper(&fakeRetentionStore{}, "not a cron", time.Hour, testLogger()); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestSweepUsesAgeCutoff(t *testing.T) {
	st := &fakeRetentionStore{deleted: 5}
	s, err := NewSweeper(st, "", 24*time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}

	before := time.Now().Add(-24 * time.Hour)
	s.Sweep(context.Background())
	after := time.Now().Add(-24 * time.Hour)

	if len(st.cutoffs) != 1 {
		t.Fatalf("expected one delete call, got %d", len(st.cutoffs))
	}
	cutoff := st.cutoffs[0]
	if cutoff.Before(before) || cutoff.After(after) {
		t.Errorf("cutoff %v outside expected window", cutoff)
	}
}
