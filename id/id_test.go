package id_test

import (
	"strings"
	"testing"

	"github.com/Aparnap2/internal-flow-ops/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"RunID", id.NewRunID, "run_"},
		{"CheckpointID", id.NewCheckpointID, "ckpt_"},
		{"EventID", id.NewEventID, "evt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNew(t *testing.T) {
	i := id.New(id.PrefixRun)
	if i.IsNil() {
		t.Fatal("expected non-nil ID")
	}
	if i.Prefix() != id.PrefixRun {
		t.Errorf("expected prefix %q, got %q", id.PrefixRun, i.Prefix())
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewRunID()
	parsed, err := id.ParseRunID(orig.String())
	if err != nil {
		t.Fatalf("ParseRunID() error = %v", err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseWithPrefixMismatch(t *testing.T) {
	run := id.NewRunID()
	if _, err := id.ParseCheckpointID(run.String()); err == nil {
		t.Error("expected prefix mismatch error")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestMarshalTextRoundTrip(t *testing.T) {
	orig := id.NewEventID()
	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v", err)
	}

	var got id.ID
	if err := got.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("round trip = %q, want %q", got.String(), orig.String())
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero value should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", i.String())
	}
}
