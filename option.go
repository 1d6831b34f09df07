package vfs

// A CaseSensitivity describes the path matching regime of a filesystem. The values
// combine bitwise: a composition over a sensitive and an insensitive child advertises
// both bits, because its path matching must accept either regime.
type CaseSensitivity int32

const (
	// CaseInherited leaves the regime unspecified, e.g. for decorations which take
	// whatever their child declares.
	CaseInherited CaseSensitivity = 0
	// CaseSensitive matches names byte for byte.
	CaseSensitive CaseSensitivity = 1 << iota
	// CaseInsensitive folds names before matching.
	CaseInsensitive
)

// A BrowseFacet declares the listing capabilities.
type BrowseFacet struct {
	// CanBrowse permits ReadDir.
	CanBrowse bool
	// CanStat permits Stat.
	CanStat bool
}

// An OpenFacet declares the stream capabilities.
type OpenFacet struct {
	CanOpen       bool
	CanRead       bool
	CanWrite      bool
	CanCreateFile bool
}

// A MutateFacet declares the structural write capabilities.
type MutateFacet struct {
	CanCreateDirectory bool
	CanDelete          bool
	CanMove            bool
}

// An ObserveFacet declares the event capabilities.
type ObserveFacet struct {
	CanObserve            bool
	CanSetEventDispatcher bool
}

// A MountFacet declares whether the filesystem can attach further children.
type MountFacet struct {
	CanMount bool
}

// A PathFacet declares the path handling properties.
type PathFacet struct {
	// Sensitivity is the declared case regime.
	Sensitivity CaseSensitivity
	// EmptyDirName tells if empty trailing segments (a trailing slash) are tolerated.
	EmptyDirName bool
}

// A MountPathFacet carries the path translation of a composition component: operations
// on Parent/... are rewritten to Child/... before reaching the component.
type MountPathFacet struct {
	Parent Path
	Child  Path
}

// An Option is a compound of typed facets, used both as the capability advertisement
// of a filesystem and as the decoration mask of a composition component. A nil facet
// means unspecified: combining treats it as transparent and takes the other operand's
// facet.
type Option struct {
	Browse    *BrowseFacet
	Open      *OpenFacet
	Mutate    *MutateFacet
	Observe   *ObserveFacet
	Mount     *MountFacet
	Path      *PathFacet
	MountPath *MountPathFacet
}

// Union combines two options so that everything permitted by either operand is
// permitted by the result. Case sensitivity bits are or-ed; the first non-empty mount
// path wins.
func (o Option) Union(other Option) Option {
	return Option{
		Browse: combineBrowse(o.Browse, other.Browse, func(a, b BrowseFacet) BrowseFacet {
			return BrowseFacet{a.CanBrowse || b.CanBrowse, a.CanStat || b.CanStat}
		}),
		Open: combineOpen(o.Open, other.Open, func(a, b OpenFacet) OpenFacet {
			return OpenFacet{a.CanOpen || b.CanOpen, a.CanRead || b.CanRead, a.CanWrite || b.CanWrite, a.CanCreateFile || b.CanCreateFile}
		}),
		Mutate: combineMutate(o.Mutate, other.Mutate, func(a, b MutateFacet) MutateFacet {
			return MutateFacet{a.CanCreateDirectory || b.CanCreateDirectory, a.CanDelete || b.CanDelete, a.CanMove || b.CanMove}
		}),
		Observe: combineObserve(o.Observe, other.Observe, func(a, b ObserveFacet) ObserveFacet {
			return ObserveFacet{a.CanObserve || b.CanObserve, a.CanSetEventDispatcher || b.CanSetEventDispatcher}
		}),
		Mount: combineMount(o.Mount, other.Mount, func(a, b MountFacet) MountFacet {
			return MountFacet{a.CanMount || b.CanMount}
		}),
		Path: combinePath(o.Path, other.Path, func(a, b PathFacet) PathFacet {
			return PathFacet{a.Sensitivity | b.Sensitivity, a.EmptyDirName || b.EmptyDirName}
		}),
		MountPath: combineMountPath(o.MountPath, other.MountPath),
	}
}

// Intersect combines two options so that only what both operands permit survives. Case
// sensitivity bits are still or-ed, because a reduced filesystem must keep accepting
// whatever regime its child declares.
func (o Option) Intersect(other Option) Option {
	return Option{
		Browse: combineBrowse(o.Browse, other.Browse, func(a, b BrowseFacet) BrowseFacet {
			return BrowseFacet{a.CanBrowse && b.CanBrowse, a.CanStat && b.CanStat}
		}),
		Open: combineOpen(o.Open, other.Open, func(a, b OpenFacet) OpenFacet {
			return OpenFacet{a.CanOpen && b.CanOpen, a.CanRead && b.CanRead, a.CanWrite && b.CanWrite, a.CanCreateFile && b.CanCreateFile}
		}),
		Mutate: combineMutate(o.Mutate, other.Mutate, func(a, b MutateFacet) MutateFacet {
			return MutateFacet{a.CanCreateDirectory && b.CanCreateDirectory, a.CanDelete && b.CanDelete, a.CanMove && b.CanMove}
		}),
		Observe: combineObserve(o.Observe, other.Observe, func(a, b ObserveFacet) ObserveFacet {
			return ObserveFacet{a.CanObserve && b.CanObserve, a.CanSetEventDispatcher && b.CanSetEventDispatcher}
		}),
		Mount: combineMount(o.Mount, other.Mount, func(a, b MountFacet) MountFacet {
			return MountFacet{a.CanMount && b.CanMount}
		}),
		Path: combinePath(o.Path, other.Path, func(a, b PathFacet) PathFacet {
			return PathFacet{a.Sensitivity | b.Sensitivity, a.EmptyDirName && b.EmptyDirName}
		}),
		MountPath: combineMountPath(o.MountPath, other.MountPath),
	}
}

func combineBrowse(a, b *BrowseFacet, merge func(BrowseFacet, BrowseFacet) BrowseFacet) *BrowseFacet {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		c := *b
		return &c
	}
	if b == nil {
		c := *a
		return &c
	}
	c := merge(*a, *b)
	return &c
}

func combineOpen(a, b *OpenFacet, merge func(OpenFacet, OpenFacet) OpenFacet) *OpenFacet {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		c := *b
		return &c
	}
	if b == nil {
		c := *a
		return &c
	}
	c := merge(*a, *b)
	return &c
}

func combineMutate(a, b *MutateFacet, merge func(MutateFacet, MutateFacet) MutateFacet) *MutateFacet {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		c := *b
		return &c
	}
	if b == nil {
		c := *a
		return &c
	}
	c := merge(*a, *b)
	return &c
}

func combineObserve(a, b *ObserveFacet, merge func(ObserveFacet, ObserveFacet) ObserveFacet) *ObserveFacet {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		c := *b
		return &c
	}
	if b == nil {
		c := *a
		return &c
	}
	c := merge(*a, *b)
	return &c
}

func combineMount(a, b *MountFacet, merge func(MountFacet, MountFacet) MountFacet) *MountFacet {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		c := *b
		return &c
	}
	if b == nil {
		c := *a
		return &c
	}
	c := merge(*a, *b)
	return &c
}

func combinePath(a, b *PathFacet, merge func(PathFacet, PathFacet) PathFacet) *PathFacet {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		c := *b
		return &c
	}
	if b == nil {
		c := *a
		return &c
	}
	c := merge(*a, *b)
	return &c
}

// combineMountPath always picks the first non-empty translation, for union and
// intersection alike.
func combineMountPath(a, b *MountPathFacet) *MountPathFacet {
	if a != nil && (a.Parent != "" || a.Child != "") {
		c := *a
		return &c
	}
	if b != nil {
		c := *b
		return &c
	}
	if a != nil {
		c := *a
		return &c
	}
	return nil
}

// CanBrowse tells if ReadDir is advertised.
func (o Option) CanBrowse() bool { return o.Browse != nil && o.Browse.CanBrowse }

// CanStat tells if Stat is advertised.
func (o Option) CanStat() bool { return o.Browse != nil && o.Browse.CanStat }

// CanOpen tells if Open is advertised at all.
func (o Option) CanOpen() bool { return o.Open != nil && o.Open.CanOpen }

// CanRead tells if streams with read access are advertised.
func (o Option) CanRead() bool { return o.Open != nil && o.Open.CanRead }

// CanWrite tells if streams with write access are advertised.
func (o Option) CanWrite() bool { return o.Open != nil && o.Open.CanWrite }

// CanCreateFile tells if Open may bring files into existence.
func (o Option) CanCreateFile() bool { return o.Open != nil && o.Open.CanCreateFile }

// CanCreateDirectory tells if MkDirs is advertised.
func (o Option) CanCreateDirectory() bool { return o.Mutate != nil && o.Mutate.CanCreateDirectory }

// CanDelete tells if Delete is advertised.
func (o Option) CanDelete() bool { return o.Mutate != nil && o.Mutate.CanDelete }

// CanMove tells if Rename is advertised.
func (o Option) CanMove() bool { return o.Mutate != nil && o.Mutate.CanMove }

// CanObserve tells if Observe is advertised.
func (o Option) CanObserve() bool { return o.Observe != nil && o.Observe.CanObserve }

// CanSetEventDispatcher tells if SetEventDispatcher is advertised.
func (o Option) CanSetEventDispatcher() bool {
	return o.Observe != nil && o.Observe.CanSetEventDispatcher
}

// CanMount tells if further children can be attached.
func (o Option) CanMount() bool { return o.Mount != nil && o.Mount.CanMount }

// Sensitivity returns the declared case regime or CaseInherited.
func (o Option) Sensitivity() CaseSensitivity {
	if o.Path == nil {
		return CaseInherited
	}
	return o.Path.Sensitivity
}

// EmptyDirName tells if trailing slashes are tolerated.
func (o Option) EmptyDirName() bool { return o.Path != nil && o.Path.EmptyDirName }

// AllOptions returns the full capability set, as advertised by a writable filesystem
// with observer support.
func AllOptions() Option {
	return Option{
		Browse:  &BrowseFacet{CanBrowse: true, CanStat: true},
		Open:    &OpenFacet{CanOpen: true, CanRead: true, CanWrite: true, CanCreateFile: true},
		Mutate:  &MutateFacet{CanCreateDirectory: true, CanDelete: true, CanMove: true},
		Observe: &ObserveFacet{CanObserve: true, CanSetEventDispatcher: true},
		Path:    &PathFacet{Sensitivity: CaseSensitive, EmptyDirName: true},
	}
}

// ReadOnlyOptions returns the capability set of a filesystem which only lists and
// reads. The mutate and observe facets are spelled out as denied, so the value also
// works as a decoration mask: an absent facet would be inherited from the child.
func ReadOnlyOptions() Option {
	return Option{
		Browse:  &BrowseFacet{CanBrowse: true, CanStat: true},
		Open:    &OpenFacet{CanOpen: true, CanRead: true},
		Mutate:  &MutateFacet{},
		Observe: &ObserveFacet{},
		Path:    &PathFacet{Sensitivity: CaseSensitive},
	}
}
