package vm

// ---------------------------------------------------------------------------
// TwoSpaceHeap (Component C)
// ---------------------------------------------------------------------------
//
// Pairs one new-space (two semi-spaces, only one active at a time) with
// one OldSpace. Allocate places objects in new-space only and reports
// failure when new-space is full; it does not run a scavenge
// (scavenger.go) or fall back to old-space itself.
type TwoSpaceHeap struct {
	newSpace     *Space
	fromSpace    *Space // the other semi-space; swapped with newSpace each scavenge
	old          *OldSpace
	cfg          *Config
}

// NewTwoSpaceHeap creates a heap sized from cfg.
func NewTwoSpaceHeap(cfg *Config) *TwoSpaceHeap {
	return &TwoSpaceHeap{
		newSpace:  NewSpace(cfg.Heap.SemiSpaceSize),
		fromSpace: NewSpace(cfg.Heap.SemiSpaceSize),
		old:       NewOldSpace(cfg.Heap.SemiSpaceSize * 4),
		cfg:       cfg,
	}
}

// NewSpace returns the currently active semi-space that allocation
// targets.
func (h *TwoSpaceHeap) NewSpace() *Space { return h.newSpace }

// OldSpace returns the old-space half of the heap.
func (h *TwoSpaceHeap) OldSpace() *OldSpace { return h.old }

// HasEmptyNewSpace reports whether new-space currently holds no
// objects, e.g. right after a scavenge with nothing promoted back in
// since.
func (h *TwoSpaceHeap) HasEmptyNewSpace() bool { return h.newSpace.Used() == 0 }

// Allocate places o in new-space, returning false if new-space is full.
// The caller is responsible for invoking the scavenger and retrying.
func (h *TwoSpaceHeap) Allocate(o HeapObj) (Value, bool) {
	return h.newSpace.TryAllocate(o)
}

// AllocateOld places o directly in old-space, used for objects the
// mutator knows will outlive a typical new-space object -- most
// notably everything allocated under Program.Initialize's
// no-allocation-failure scope, since program objects are never
// scavenged by the ordinary process-heap scavenger.
func (h *TwoSpaceHeap) AllocateOld(o HeapObj) (Value, bool) {
	return h.old.TryAllocate(o)
}

// SwapSemiSpaces exchanges the active and reserve semi-spaces. Called
// by the scavenger once it has finished copying every survivor into the
// reserve space: the reserve becomes the new active new-space, and the
// old active space becomes the reserve. The swap itself clears nothing;
// Scavenge clears the new reserve right after calling it.
func (h *TwoSpaceHeap) SwapSemiSpaces() {
	h.newSpace, h.fromSpace = h.fromSpace, h.newSpace
}

// AdjustOldAllocationBudget recomputes old-space's word budget after a
// cycle, growing it by Config.OldSpaceGrowthFactor if the space is at
// least half full, matching OldSpace.NeedsGarbageCollection's threshold.
func (h *TwoSpaceHeap) AdjustOldAllocationBudget() {
	if h.old.NeedsGarbageCollection() {
		h.old.UpdateBaseAndLimit(int(float64(h.old.Size()) * h.cfg.Heap.OldSpaceGrowthFactor))
	}
}

// RecordWrite is the write barrier: called after any store of value
// into a slot belonging to holder. If holder lives in old-space and
// value is a new-space pointer, holder is added to the remembered set
// so a future scavenge knows to treat it as a root.
func (h *TwoSpaceHeap) RecordWrite(holder HeapObj, value Value) {
	if !value.IsObject() {
		return
	}
	if !h.old.isMember(holder) {
		return
	}
	if h.newSpace.isMember(value.Obj().(HeapObj)) {
		h.old.RecordOldToNewStore(holder)
	}
}

// isMember reports whether o is currently recorded as living in s. This
// is a linear scan in the worst case; a production interpreter would
// instead have the write barrier called from a context that already
// knows which space the holder lives in (e.g. by checking the address
// range a real arena would give it) and skip the lookup entirely. Since
// this implementation's objects are ordinary Go values rather than
// address-ranged arena slots, membership has to be asked of the space
// that's supposed to contain them.
func (s *Space) isMember(o HeapObj) bool {
	for _, candidate := range s.objects {
		if candidate == o {
			return true
		}
	}
	return false
}

// Stats returns a point-in-time snapshot of both spaces' usage.
func (h *TwoSpaceHeap) Stats() HeapStats {
	return HeapStats{
		NewUsed: h.newSpace.Used(), NewSize: h.newSpace.Size(),
		OldUsed: h.old.Used(), OldSize: h.old.Size(),
	}
}

// HeapStats is the snapshot logged by PrintHeapStatistics (Component
// L/§6).
type HeapStats struct {
	NewUsed, NewSize int
	OldUsed, OldSize int
}
