package strategy

import (
	"errors"
	"strings"
	"testing"

	"github.com/raghavared/agent-maestro/internal/ds"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	s := Strategy{ID: "queue", Kind: ds.KindQueue, CommandNamespace: "queue"}
	if err := r.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(s); !errors.Is(err, ErrDuplicateStrategy) {
		t.Fatalf("second Register() error = %v, want ErrDuplicateStrategy", err)
	}
}

func TestRegistryFreezesOnRegister(t *testing.T) {
	r := NewRegistry()
	s := Strategy{
		ID:               "queue",
		Kind:             ds.KindQueue,
		CommandNamespace: "queue",
		AllowedCommands:  []string{"start"},
		Transitions: map[ds.ItemStatus][]ds.ItemStatus{
			ds.StatusQueued: {ds.StatusProcessing},
		},
	}
	if err := r.Register(s); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Mutating the caller's copy after registration must not leak in.
	s.AllowedCommands[0] = "destroy"
	s.Transitions[ds.StatusQueued][0] = ds.StatusFailed

	got, err := r.Get("queue")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AllowedCommands[0] != "start" {
		t.Fatalf("registered command mutated to %q", got.AllowedCommands[0])
	}
	if got.Transitions[ds.StatusQueued][0] != ds.StatusProcessing {
		t.Fatalf("registered transition mutated to %q", got.Transitions[ds.StatusQueued][0])
	}

	// Mutating a returned copy must not corrupt the catalog either.
	got.AllowedCommands[0] = "destroy"
	again, _ := r.Get("queue")
	if again.AllowedCommands[0] != "start" {
		t.Fatalf("catalog mutated through returned copy")
	}
}

func TestRegistryDefault(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Default(); !errors.Is(err, ErrNoDefault) {
		t.Fatalf("Default() on empty registry error = %v, want ErrNoDefault", err)
	}
	if err := r.Register(Strategy{ID: "simple", Kind: ds.KindNone, CommandNamespace: "task", IsDefault: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, err := r.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if got.ID != "simple" {
		t.Fatalf("Default().ID = %q, want simple", got.ID)
	}
	err = r.Register(Strategy{ID: "other", Kind: ds.KindNone, CommandNamespace: "task", IsDefault: true})
	if err == nil {
		t.Fatalf("second default Register() succeeded, want error")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestBuiltinCatalog(t *testing.T) {
	r, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}

	def, err := r.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if def.ID != "simple" {
		t.Fatalf("default strategy = %q, want simple", def.ID)
	}

	ids := r.IDs()
	want := []string{"dag", "priority", "queue", "simple", "stack"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}

	ok, err := r.IsValidCommand("queue", "queue", "skip")
	if err != nil || !ok {
		t.Fatalf("IsValidCommand(queue, skip) = %v, %v, want true", ok, err)
	}
	ok, err = r.IsValidCommand("stack", "stack", "skip")
	if err != nil || ok {
		t.Fatalf("IsValidCommand(stack, skip) = %v, %v, want false", ok, err)
	}
	ok, err = r.IsValidCommand("priority", "queue", "start")
	if err != nil || ok {
		t.Fatalf("cross-namespace command accepted")
	}

	// skip is terminal for queue items: no transition out of skipped.
	queue, _ := r.Get("queue")
	if got := queue.AllowedFrom(ds.StatusSkipped); len(got) != 0 {
		t.Fatalf("transitions out of skipped = %v, want none", got)
	}

	ok, err = r.IsValidTransition("dag", ds.StatusBlocked, ds.StatusQueued)
	if err != nil || !ok {
		t.Fatalf("IsValidTransition(dag, blocked->queued) = %v, %v, want true", ok, err)
	}
	ok, err = r.IsValidTransition("dag", ds.StatusBlocked, ds.StatusProcessing)
	if err != nil || ok {
		t.Fatalf("IsValidTransition(dag, blocked->processing) = %v, %v, want false", ok, err)
	}
}

func TestCommandListRendering(t *testing.T) {
	r, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin() error = %v", err)
	}
	queue, _ := r.Get("queue")
	got := queue.CommandList()
	if !strings.HasPrefix(got, "queue {") {
		t.Fatalf("CommandList() = %q, want queue {...}", got)
	}
	for _, verb := range []string{"top", "start", "complete", "fail", "skip", "list", "add"} {
		if !strings.Contains(got, verb) {
			t.Fatalf("CommandList() = %q, missing %q", got, verb)
		}
	}
}
