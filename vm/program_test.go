package vm

import "testing"

// TestInitializeSingletonAdjacency verifies that Initialize's null/false/true
// triple lands contiguously, in that order, in program space, the
// adjacency invariant checkSingletonLayout enforces at allocation time and
// that boolean identity relies on elsewhere. Initialize allocates further
// objects after the triple, so its position is not the tail.
func TestInitializeSingletonAdjacency(t *testing.T) {
	p := newTestProgram()

	objs := p.space.objects
	n := len(objs)
	if n < 3 {
		t.Fatalf("program space has only %d objects, want at least 3", n)
	}
	i := 0
	for i < n && ValueOf(objs[i]) != p.Null {
		i++
	}
	if i+2 >= n {
		t.Fatalf("Null not found with two objects after it (index %d of %d)", i, n)
	}
	if ValueOf(objs[i]) != p.Null {
		t.Errorf("object at i is not Null")
	}
	if ValueOf(objs[i+1]) != p.False {
		t.Errorf("object at i+1 is not False")
	}
	if ValueOf(objs[i+2]) != p.True {
		t.Errorf("object at i+2 is not True")
	}
}

// TestBooleanIdentity exercises Value's IsNil/IsTrue/IsFalse/IsTruthy
// helpers against the singletons Initialize just built.
func TestBooleanIdentity(t *testing.T) {
	p := newTestProgram()

	if !p.Null.IsNil(p) {
		t.Error("Null.IsNil is false")
	}
	if !p.True.IsTrue(p) || p.False.IsTrue(p) {
		t.Error("IsTrue disagrees with True/False")
	}
	if !p.False.IsFalse(p) || p.True.IsFalse(p) {
		t.Error("IsFalse disagrees with True/False")
	}
	if p.Null.IsTruthy(p) || p.False.IsTruthy(p) {
		t.Error("Null/False should not be truthy")
	}
	if !p.True.IsTruthy(p) {
		t.Error("True should be truthy")
	}
	if FromBool(p, true) != p.True || FromBool(p, false) != p.False {
		t.Error("FromBool does not round-trip")
	}
}

// TestIterateRootsRoundTrip calls IterateRoots twice with an identity
// visitor and checks every singleton, the class table, and the dispatch
// table survive unchanged -- the regression test for the bug where
// Classes.All() was read but never written back (see DESIGN.md).
func TestIterateRootsRoundTrip(t *testing.T) {
	p := newTestProgram()

	before := map[string]Value{}
	names, values := p.Classes.Snapshot()
	for i, n := range names {
		before[n] = values[i]
	}

	p.IterateRoots(identityVisitor{})

	if p.Null == 0 || p.False == 0 || p.True == 0 {
		t.Fatal("singleton roots were cleared by IterateRoots")
	}

	names2, values2 := p.Classes.Snapshot()
	if len(names2) != len(before) {
		t.Fatalf("class table size changed: %d -> %d", len(before), len(names2))
	}
	for i, n := range names2 {
		if before[n] != values2[i] {
			t.Errorf("class %q changed across IterateRoots round trip: %v -> %v", n, before[n], values2[i])
		}
	}
}

// TestIterateRootsWritesBackRelocatedClasses simulates what a compacting
// pass does: visit roots with a visitor that relocates one specific class,
// and check the class table's lookup reflects the move afterward.
func TestIterateRootsWritesBackRelocatedClasses(t *testing.T) {
	p := newTestProgram()

	fooClass := p.classFor("Foo", p.ClassClass)
	replacement := p.classFor("Bar", p.ClassClass) // any other live Value works as a stand-in target

	relocate := VisitBlockFunc(func(v Value) Value {
		if v == fooClass {
			return replacement
		}
		return v
	})
	p.IterateRoots(relocate)

	got, ok := p.Classes.Lookup("Foo")
	if !ok {
		t.Fatal("Foo no longer registered after IterateRoots")
	}
	if got != replacement {
		t.Errorf("Classes table still points at pre-relocation value: got %v, want %v", got, replacement)
	}
}

// TestClassForBootstrapsOnce verifies classFor only allocates a
// placeholder on first lookup and returns the same Value afterward.
func TestClassForBootstrapsOnce(t *testing.T) {
	p := newTestProgram()

	first := p.classFor("Widget", p.ClassClass)
	second := p.classFor("Widget", p.ClassClass)
	if first != second {
		t.Errorf("classFor allocated twice for the same name: %v != %v", first, second)
	}
	if !p.Classes.Has("Widget") {
		t.Error("classFor did not register the placeholder class")
	}
}

// TestInternSymbolIsIdempotent checks interning the same name twice
// returns the same heap string Value rather than allocating again.
func TestInternSymbolIsIdempotent(t *testing.T) {
	p := newTestProgram()

	a := p.InternSymbol("doesNotUnderstand:")
	b := p.InternSymbol("doesNotUnderstand:")
	if a != b {
		t.Errorf("InternSymbol not idempotent: %v != %v", a, b)
	}
	if a.Obj().(*ByteArray).String() != "doesNotUnderstand:" {
		t.Errorf("interned string mismatch: %q", a.Obj().(*ByteArray).String())
	}
}

// TestExitCodeMapping spot-checks ExitCode's switch, including the
// unreachable-sentinel error path.
func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		kind ExitKind
		want int
	}{
		{ExitNormal, 0},
		{ExitUncaughtException, 1},
		{ExitOutOfMemory, 2},
		{ExitCompileTimeError, 3},
		{ExitKilled, 4},
	}
	for _, c := range cases {
		got, err := ExitCode(c.kind)
		if err != nil {
			t.Errorf("ExitCode(%v) returned error %v", c.kind, err)
		}
		if got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.kind, got, c.want)
		}
	}

	if _, err := ExitCode(exitShouldKill); err != ErrShouldKill {
		t.Errorf("ExitCode(exitShouldKill) error = %v, want ErrShouldKill", err)
	}
}
