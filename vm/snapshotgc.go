package vm

import (
	"math/big"
	"sort"
)

// ---------------------------------------------------------------------------
// Snapshot-reshape GC (Component I)
// ---------------------------------------------------------------------------
//
// SnapshotGC augments an ordinary program GC with the extra passes a
// portable, compressible snapshot image needs, per §4.I:
//   1. integer re-boxing, so every immediate left in the image fits a
//      narrower target word size too;
//   2. an ordinary program GC, to eliminate garbage before reshaping;
//   3. double clustering and a canonical (double class, null, false,
//      true) triple at the front of program space;
//   4. popularity-ordered placement of what's left, for locality;
//   5. a second ordinary program GC to finish (rekey breakpoints,
//      recompute dispatch code pointers, uncook/unchain stacks).

// SnapshotGC runs one snapshot-reshape cycle and returns the
// popularity-counter result, mostly for tests and PrintProgramStatistics
// to report on.
func (p *Program) SnapshotGC(processes []Process, walker FrameWalker) map[HeapObj]int {
	reboxed := p.reboxLargeIntegers()
	logProgramStats(p.Cfg, "snapshot_gc: reboxed %d out-of-range immediates", reboxed)

	p.CollectGarbage(processes, walker)

	counts := p.clusterForSnapshot(processes)

	p.CollectGarbage(processes, walker)
	return counts
}

// reboxLargeIntegers visits every slot of every object in program space
// and the shared heap, including immediates, and replaces any Smi
// outside the portable small-integer range with a freshly allocated
// LargeInteger. Under this package's Value (whose Smi range is already
// defined as the portable range -- see value.go) this never finds
// anything to act on through ordinary construction; it is kept as a
// real, independently exercised pass rather than assumed away, since it
// is the one place a 64-bit-native Value scheme with a wider Smi range
// would need to do real reboxing work before its snapshot could load on
// a narrower target.
func (p *Program) reboxLargeIntegers() int {
	reboxed := 0
	largeIntegerClass := p.classFor("LargeInteger", p.ClassClass)
	rebox := VisitBlockFunc(func(v Value) Value {
		if !v.IsSmallInt() {
			return v
		}
		n := v.SmallInt()
		if n <= MaxSmallInt && n >= MinSmallInt {
			return v
		}
		reboxed++
		return p.allocateOld(NewLargeInteger(largeIntegerClass, big.NewInt(n)))
	})
	for _, o := range p.space.objects {
		VisitEverything(ValueOf(o), rebox)
	}
	p.Shared.NewSpace().IterateObjects(func(o HeapObj) { VisitEverything(ValueOf(o), rebox) })
	p.Shared.OldSpace().IterateObjects(func(o HeapObj) { VisitEverything(ValueOf(o), rebox) })
	return reboxed
}

// popularityCounter counts, for every heap pointer a traversal visits,
// how many times it was referenced -- find_most_popular's input.
type popularityCounter struct {
	counts map[HeapObj]int
}

func (c *popularityCounter) VisitSlot(v Value) Value {
	if v.IsObject() {
		c.counts[v.Obj().(HeapObj)]++
	}
	return v
}

// findMostPopular returns every counted object's Value, most-referenced
// first, breaking ties by original heap order for determinism.
func findMostPopular(counts map[HeapObj]int, order map[HeapObj]int) []Value {
	type entry struct {
		obj   HeapObj
		count int
	}
	entries := make([]entry, 0, len(counts))
	for o, n := range counts {
		entries = append(entries, entry{o, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return order[entries[i].obj] < order[entries[j].obj]
	})
	out := make([]Value, len(entries))
	for i, e := range entries {
		out[i] = ValueOf(e.obj)
	}
	return out
}

// clusterForSnapshot rebuilds program space in snapshot order: every
// BoxedDouble first, then the double class, then the null/false/true
// triple, then the remaining objects most-referenced first. It returns
// the popularity counts the reorder pass computed, so SnapshotGC's
// caller can report them. processes is every live process, so their
// direct program-space pointers (IterateProgramPointers) and own class
// pointers can be fixed up the same way program GC's compaction fixes
// up everything else that points into program space.
func (p *Program) clusterForSnapshot(processes []Process) map[HeapObj]int {
	doubleClass := p.classFor("Double", p.ClassClass)

	order := make(map[HeapObj]int, len(p.space.objects))
	var doubles []Value
	for i, o := range p.space.objects {
		order[o] = i
		if _, ok := o.(*BoxedDouble); ok {
			doubles = append(doubles, ValueOf(o))
		}
	}

	counter := &popularityCounter{counts: make(map[HeapObj]int)}
	for _, o := range p.space.objects {
		VisitObject(ValueOf(o), counter)
	}
	popular := findMostPopular(counter.counts, order)

	seeds := make([]Value, 0, len(doubles)+4+len(popular))
	seeds = append(seeds, doubles...)
	seeds = append(seeds, doubleClass, p.Null, p.False, p.True)
	seeds = append(seeds, popular...)

	moved := reorderOldSpace(p.space, seeds)

	fix := &addressMappingVisitor{moved: moved}
	p.IterateRoots(fix)
	for _, proc := range processes {
		proc.IterateProgramPointers(fix)
	}
	p.breakpoints.VisitPointers(fix)
	p.visitSharedClassPointers(fix)

	// reorderOldSpace's own fixup (VisitObject over every relocated
	// clone, inside its drain) skips Header.Class for the same reason
	// compactOldSpaceMoves's does -- see scavengeProgramSpace. Since
	// this pass also relocates program space's own classes, every
	// surviving object's own class pointer needs the same treatment.
	for _, o := range p.space.objects {
		VisitClassPointer(ValueOf(o), fix)
	}

	p.space.ClearMarkBits()
	return counter.counts
}

// reorderOldSpace rebuilds old's object list in the order seeds visits
// them (first-visited lands first), followed by a breadth-first walk of
// each seed's own pointer slots, followed by whatever old-space objects
// no seed reached at all (so every live object still ends up included,
// just last). Returns the old-object-to-relocated-Value mapping, for
// the caller to fix up every other reference into old the same way
// compactOldSpaceMoves's callers do.
func reorderOldSpace(old *OldSpace, seeds []Value) map[HeapObj]Value {
	moved := make(map[HeapObj]Value, len(old.objects))
	newObjects := make([]HeapObj, 0, len(old.objects))
	used := 0
	var queue []HeapObj

	place := VisitBlockFunc(func(v Value) Value {
		if !v.IsObject() {
			return v
		}
		o := v.Obj().(HeapObj)
		if nv, ok := moved[o]; ok {
			return nv
		}
		clone := cloneHeapObj(o)
		newObjects = append(newObjects, clone)
		used += Size(clone)
		nv := ValueOf(clone)
		moved[o] = nv
		o.headerPtr().Forward(nv)
		queue = append(queue, clone)
		return nv
	})

	for _, s := range seeds {
		place.VisitSlot(s)
	}
	drain := func() {
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			VisitObject(ValueOf(c), place)
		}
	}
	drain()

	for _, o := range old.objects {
		if _, ok := moved[o]; !ok {
			place.VisitSlot(ValueOf(o))
		}
	}
	drain()

	old.objects = newObjects
	old.used = used
	return moved
}
