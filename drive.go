package vfs

import "github.com/dustin/go-humanize"

// A DriveInfo carries the capacity facts of a KindDrive entry.
type DriveInfo struct {
	// Type names the kind of drive, e.g. "fixed", "removable" or "ram".
	Type string
	// Free is the number of unused bytes, -1 if unknown.
	Free int64
	// Total is the capacity in bytes, -1 if unknown.
	Total int64
	// Label is the user visible volume name.
	Label string
	// Format names the on-disk format, e.g. "memfs" or "ext4".
	Format string
}

func (d *DriveInfo) String() string {
	free := "?"
	total := "?"
	if d.Free >= 0 {
		free = humanize.IBytes(uint64(d.Free))
	}
	if d.Total >= 0 {
		total = humanize.IBytes(uint64(d.Total))
	}
	label := d.Label
	if label == "" {
		label = d.Type
	}
	return label + " (" + d.Format + ", " + free + " free of " + total + ")"
}
