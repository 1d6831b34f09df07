package vfs

import "testing"

func TestOptionUnion(t *testing.T) {
	readOnly := ReadOnlyOptions()
	writeOnly := Option{
		Open:   &OpenFacet{CanOpen: true, CanWrite: true, CanCreateFile: true},
		Mutate: &MutateFacet{CanDelete: true},
		Path:   &PathFacet{Sensitivity: CaseInsensitive},
	}
	combined := readOnly.Union(writeOnly)
	if !combined.CanBrowse() || !combined.CanStat() {
		t.Fatal("expected browsing to survive the union")
	}
	if !combined.CanRead() || !combined.CanWrite() || !combined.CanCreateFile() {
		t.Fatal("expected the union of the open facets")
	}
	if !combined.CanDelete() || combined.CanMove() {
		t.Fatal("expected delete without move")
	}
	if combined.Sensitivity() != CaseSensitive|CaseInsensitive {
		t.Fatalf("expected both case bits but got %v", combined.Sensitivity())
	}
}

func TestOptionIntersect(t *testing.T) {
	full := AllOptions()
	mask := Option{
		Browse: &BrowseFacet{CanBrowse: true},
		Open:   &OpenFacet{CanOpen: true, CanRead: true},
	}
	reduced := full.Intersect(mask)
	if !reduced.CanBrowse() || reduced.CanStat() {
		t.Fatal("expected only browsing to survive the mask")
	}
	if !reduced.CanRead() || reduced.CanWrite() || reduced.CanCreateFile() {
		t.Fatal("expected the open facet reduced to reading")
	}
	// Facets absent from the mask inherit the advertisement.
	if !reduced.CanDelete() || !reduced.CanObserve() {
		t.Fatal("expected unspecified facets to stay transparent")
	}
}

func TestOptionAbsentFacetInherits(t *testing.T) {
	var empty Option
	full := AllOptions()
	if got := empty.Union(full); !got.CanBrowse() || !got.CanObserve() {
		t.Fatal("expected the empty option to be transparent in a union")
	}
	if got := full.Intersect(empty); !got.CanBrowse() || !got.CanObserve() {
		t.Fatal("expected the empty option to be transparent in an intersection")
	}
	if empty.CanBrowse() || empty.CanOpen() || empty.CanObserve() {
		t.Fatal("expected the zero option to advertise nothing")
	}
	if empty.Sensitivity() != CaseInherited {
		t.Fatal("expected the zero option to inherit the case regime")
	}
}

func TestOptionCombiningDoesNotAlias(t *testing.T) {
	a := AllOptions()
	b := ReadOnlyOptions()
	combined := a.Union(b)
	combined.Open.CanWrite = false
	if !a.CanWrite() {
		t.Fatal("expected the operands to stay untouched")
	}
}

func TestMountPathFirstNonEmptyWins(t *testing.T) {
	a := Option{MountPath: &MountPathFacet{Parent: "mnt", Child: "data"}}
	b := Option{MountPath: &MountPathFacet{Parent: "other"}}
	got := a.Union(b)
	if got.MountPath == nil || got.MountPath.Parent != "mnt" || got.MountPath.Child != "data" {
		t.Fatalf("expected the first translation to win but got %v", got.MountPath)
	}
	got = b.Union(a)
	if got.MountPath == nil || got.MountPath.Parent != "other" {
		t.Fatalf("expected the first translation to win but got %v", got.MountPath)
	}
}
