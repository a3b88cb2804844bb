package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTaxonomy(t *testing.T) {
	te := Transient("pubmed esearch", errors.New("connection reset"))
	if !IsTransient(te) {
		t.Error("Transient error should be transient")
	}
	if IsPermanent(te) {
		t.Error("Transient error should not be permanent")
	}

	pe := Permanent("crossref", errors.New("bad json"))
	if !IsPermanent(pe) {
		t.Error("Permanent error should be permanent")
	}
	if IsTransient(pe) {
		t.Error("Permanent error should not be transient")
	}

	wrapped := fmt.Errorf("fetch failed: %w", te)
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error should still be transient")
	}

	if !IsTransient(context.DeadlineExceeded) {
		t.Error("deadline expiry should count as transient")
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return Permanent("op", errors.New("malformed"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent failure should not be retried, got %d calls", calls)
	}
	if !IsPermanent(err) {
		t.Errorf("error taxonomy should survive retry, got %v", err)
	}
}

func TestRetryRetriesTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return Transient("op", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return Transient("op", errors.New("503"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maxAttempts {
		t.Errorf("expected %d attempts, got %d", maxAttempts, calls)
	}
}
