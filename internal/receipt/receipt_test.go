package receipt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atomikpanda/nixup/internal/action"
	"github.com/atomikpanda/nixup/internal/plan"
)

type markerStep struct {
	Marker string `json:"marker"`
}

func init() {
	action.Register("marker-step", func() action.Action { return &markerStep{} })
}

func (s *markerStep) Tag() string                      { return "marker-step" }
func (s *markerStep) Describe() string                 { return "Marker " + s.Marker }
func (s *markerStep) Explain() []string                { return nil }
func (s *markerStep) Execute(ctx context.Context) error { return nil }
func (s *markerStep) Revert(ctx context.Context) error  { return nil }

func testStore(t *testing.T) *Store {
	t.Helper()
	return &Store{Path: filepath.Join(t.TempDir(), "receipt.json")}
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		Version: plan.InstallerVersion,
		Planner: "linux-multi",
		Actions: []*action.Stateful{
			action.Plan(&markerStep{Marker: "a"}),
			action.Plan(&markerStep{Marker: "b"}),
		},
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	p := testPlan()
	p.Actions[0].State = action.Completed

	if err := s.Write(p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Planner != "linux-multi" {
		t.Errorf("planner = %q", got.Planner)
	}
	if got.Actions[0].State != action.Completed || got.Actions[1].State != action.Pending {
		t.Errorf("states = %s, %s", got.Actions[0].State, got.Actions[1].State)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := testStore(t)
	if err := s.Write(testPlan()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Dir(s.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "receipt.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only receipt.json", names)
	}
}

func TestWriteReplacesAtomically(t *testing.T) {
	s := testStore(t)
	p := testPlan()
	if err := s.Write(p); err != nil {
		t.Fatal(err)
	}
	p.Actions[0].State = action.Completed
	if err := s.Write(p); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Actions[0].State != action.Completed {
		t.Errorf("second write not visible; state = %s", got.Actions[0].State)
	}
}

func TestLoadMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.Load(); !errors.Is(err, ErrNoReceipt) {
		t.Errorf("err = %v, want ErrNoReceipt", err)
	}
}

func TestLoadRejectsIncompatibleVersion(t *testing.T) {
	s := testStore(t)
	p := testPlan()
	if err := s.Write(p); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatal(err)
	}
	mangled := strings.Replace(string(data), plan.InstallerVersion, "99.0.0", 1)
	if err := os.WriteFile(s.Path, []byte(mangled), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = s.Load()
	var vm *plan.VersionMismatchError
	if !errors.As(err, &vm) {
		t.Fatalf("err = %v, want VersionMismatchError", err)
	}
}

func TestLoadRejectsMalformedReceipt(t *testing.T) {
	s := testStore(t)
	if err := os.WriteFile(s.Path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err == nil {
		t.Fatal("want error for malformed receipt")
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	if err := s.Write(testPlan()); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Fatal(err)
	}
	if s.Exists() {
		t.Error("receipt still present after Delete")
	}
	// Deleting an absent receipt is fine.
	if err := s.Delete(); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestLockExcludesSecondAcquire(t *testing.T) {
	s := testStore(t)
	lock, err := s.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if _, err := s.Acquire(); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquire err = %v, want ErrLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	lock2, err := s.Acquire()
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	lock2.Release()
}
