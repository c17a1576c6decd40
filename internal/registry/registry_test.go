package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/remitstream/remitcore/contracts"
)

// fakeWorker is a minimal worker for registry tests.
type fakeWorker struct {
	id  contracts.WorkerID
	cap contracts.Capability
}

func (f *fakeWorker) ID() contracts.WorkerID           { return f.id }
func (f *fakeWorker) Capability() contracts.Capability { return f.cap }
func (f *fakeWorker) MaxConcurrent() int               { return 1 }
func (f *fakeWorker) Process(context.Context, *contracts.StageTransaction) (*contracts.StageResult, error) {
	return &contracts.StageResult{OK: true}, nil
}

func ctorFor(id string, cap contracts.Capability) contracts.WorkerConstructor {
	return func(map[string]any) (contracts.Worker, error) {
		return &fakeWorker{id: contracts.WorkerID(id), cap: cap}, nil
	}
}

func TestCreateUnknownCapability(t *testing.T) {
	r := New(nil)
	if _, err := r.Create("warp_drive", nil); !errors.Is(err, contracts.ErrUnknownCapability) {
		t.Errorf("got %v, want ErrUnknownCapability", err)
	}
}

func TestCreateMissingDependency(t *testing.T) {
	r := New(nil)
	r.Register(contracts.WorkerDescriptor{
		Capability: contracts.CapSettlement,
		Version:    "1.0.0",
		Requires:   []contracts.Capability{contracts.CapExchangeRate},
	}, ctorFor("settle-1", contracts.CapSettlement))

	if _, err := r.Create(contracts.CapSettlement, nil); !errors.Is(err, contracts.ErrMissingDependency) {
		t.Fatalf("got %v, want ErrMissingDependency", err)
	}

	// Registering the requirement unblocks creation.
	r.Register(contracts.WorkerDescriptor{
		Capability: contracts.CapExchangeRate,
		Version:    "1.0.0",
	}, ctorFor("fx-1", contracts.CapExchangeRate))

	w, err := r.Create(contracts.CapSettlement, nil)
	if err != nil {
		t.Fatalf("create after dependency registered: %v", err)
	}
	if w.ID() != "settle-1" {
		t.Errorf("worker id = %s, want settle-1", w.ID())
	}
}

func TestRegisterIdempotentOnVersion(t *testing.T) {
	r := New(nil)
	desc := contracts.WorkerDescriptor{Capability: contracts.CapCompliance, Version: "1.0.0"}

	r.Register(desc, ctorFor("screener-a", contracts.CapCompliance))
	r.Register(desc, ctorFor("screener-b", contracts.CapCompliance))

	if n := len(r.Descriptors()); n != 1 {
		t.Fatalf("descriptors = %d, want 1", n)
	}

	// The later registration wins.
	w, err := r.Create(contracts.CapCompliance, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.ID() != "screener-b" {
		t.Errorf("worker id = %s, want screener-b", w.ID())
	}
}

func TestByCapabilityReturnsCopies(t *testing.T) {
	r := New(nil)
	r.Register(contracts.WorkerDescriptor{Capability: contracts.CapLiquidity, Version: "1.0.0"},
		ctorFor("liq-1", contracts.CapLiquidity))
	if _, err := r.Create(contracts.CapLiquidity, nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	ws := r.ByCapability(contracts.CapLiquidity)
	if len(ws) != 1 {
		t.Fatalf("got %d workers, want 1", len(ws))
	}
	ws[0] = nil
	if again := r.ByCapability(contracts.CapLiquidity); again[0] == nil {
		t.Error("mutating the returned slice must not affect the registry")
	}
}

func TestByCapabilitiesIntersection(t *testing.T) {
	r := New(nil)
	for _, c := range []contracts.Capability{contracts.CapMMOService, contracts.CapSettlement} {
		r.Register(contracts.WorkerDescriptor{Capability: c, Version: "1.0.0"},
			ctorFor("w-"+string(c), c))
		if _, err := r.Create(c, nil); err != nil {
			t.Fatalf("create %s: %v", c, err)
		}
	}

	// Single-capability workers never satisfy two capabilities at once.
	if ws := r.ByCapabilities(contracts.CapMMOService, contracts.CapSettlement); len(ws) != 0 {
		t.Errorf("intersection = %d workers, want 0", len(ws))
	}
	if ws := r.ByCapabilities(contracts.CapMMOService); len(ws) != 1 {
		t.Errorf("single capability = %d workers, want 1", len(ws))
	}
	if ws := r.ByCapabilities(); ws != nil {
		t.Error("zero capabilities must yield nil")
	}
}
