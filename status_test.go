package fetchz

import "testing"

func TestStatus_String_Idle(t *testing.T) {
	if s := StatusIdle.String(); s != "idle" {
		t.Errorf("expected 'idle', got %q", s)
	}
}

func TestStatus_String_Fetching(t *testing.T) {
	if s := StatusFetching.String(); s != "fetching" {
		t.Errorf("expected 'fetching', got %q", s)
	}
}

func TestStatus_String_Fetched(t *testing.T) {
	if s := StatusFetched.String(); s != "fetched" {
		t.Errorf("expected 'fetched', got %q", s)
	}
}

func TestStatus_String_Errored(t *testing.T) {
	if s := StatusErrored.String(); s != "errored" {
		t.Errorf("expected 'errored', got %q", s)
	}
}

func TestStatus_String_Unknown(t *testing.T) {
	unknown := Status(999)
	if s := unknown.String(); s != "unknown" {
		t.Errorf("expected 'unknown', got %q", s)
	}
}

func TestStatus_Values(t *testing.T) {
	// Verify iota ordering
	if StatusIdle != 0 {
		t.Errorf("expected StatusIdle=0, got %d", StatusIdle)
	}
	if StatusFetching != 1 {
		t.Errorf("expected StatusFetching=1, got %d", StatusFetching)
	}
	if StatusFetched != 2 {
		t.Errorf("expected StatusFetched=2, got %d", StatusFetched)
	}
	if StatusErrored != 3 {
		t.Errorf("expected StatusErrored=3, got %d", StatusErrored)
	}
}
