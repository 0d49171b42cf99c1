package vm

import "sync"

// ---------------------------------------------------------------------------
// Port weak-pointer processing (Component E's post-pass, Component K)
// ---------------------------------------------------------------------------
//
// A Port is the weak-pointer unit a process registers when it wants to
// be notified that some heap object died without that registration
// itself keeping the object alive. The scavenger's main copy pass
// (scavenger.go) never visits a Port's Target field as an ordinary
// pointer slot for exactly this reason; instead, once the main pass is
// done and every surviving object has been forwarded, ProcessPorts walks
// every registered port and resolves its Target through the forwarding
// table that the copy pass just built. A target with no forwarding
// entry did not survive and the port is cleared.

// PortRegistry tracks every live Port for a process or program, so the
// collector has something to walk without needing every port to also be
// an ordinary GC root.
type PortRegistry struct {
	mu    sync.RWMutex
	ports map[*Port]struct{}
}

func NewPortRegistry() *PortRegistry {
	return &PortRegistry{ports: make(map[*Port]struct{})}
}

// Register adds p to the registry.
func (r *PortRegistry) Register(p *Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[p] = struct{}{}
}

// Unregister removes p from the registry.
func (r *PortRegistry) Unregister(p *Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, p)
}

// Count returns the number of registered ports.
func (r *PortRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// Forwarded is satisfied by any collector pass that can answer "does
// this Value still point at something live, and if it moved, to where".
type Forwarded interface {
	Resolve(v Value) (Value, bool)
}

// ProcessPorts walks every registered port and resolves its Target
// through resolver. A target that Resolve reports as dead is cleared and
// the port is marked closed; a target that moved is repointed to its new
// location. Returns the number of ports cleared this pass, for
// PrintHeapStatistics reporting.
//
// Must be called after the main scavenge/mark pass has finished
// forwarding every surviving object and before the forwarding
// information is torn down.
func (r *PortRegistry) ProcessPorts(resolver Forwarded) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cleared := 0
	for p := range r.ports {
		if p.Closed {
			continue
		}
		if p.Target == 0 {
			continue
		}
		newTarget, alive := resolver.Resolve(p.Target)
		if !alive {
			p.Target = 0
			p.Closed = true
			cleared++
			continue
		}
		p.Target = newTarget
	}
	return cleared
}

// CleanupPorts closes and unregisters every port belonging to
// processID, e.g. when a process is reaped by the registry GC
// (Component K). Returns the number of ports removed.
func (r *PortRegistry) CleanupPorts(processID Value) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for p := range r.ports {
		if p.ProcessID == processID {
			p.Closed = true
			delete(r.ports, p)
			removed++
		}
	}
	return removed
}
