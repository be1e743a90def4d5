package cube

import (
	"errors"
	"fmt"
)

// ErrAlreadyExists is returned by Allocate when the output file exists
// and overwrite was not requested.
var ErrAlreadyExists = errors.New("cube file already exists")

// ShapeError reports an invalid cube shape. Always fatal and always
// detected before any I/O.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "invalid cube shape: " + e.Reason
}

// CoordinateError reports a plane coordinate outside the cube's outer
// axis extents. This is a programming or configuration error and is
// fatal.
type CoordinateError struct {
	Coord      PlaneCoordinate
	PolExtent  int
	FreqExtent int
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("plane coordinate (pol=%d, chan=%d) outside extents (%d, %d)",
		e.Coord.Pol, e.Coord.Chan, e.PolExtent, e.FreqExtent)
}

// PlaneShapeError reports a source plane whose declared shape or
// element encoding does not match the cube. The plane is rejected and
// the file is left untouched; the build continues with other planes.
type PlaneShapeError struct {
	Coord             PlaneCoordinate
	GotX, GotY        int
	WantX, WantY      int
	GotElem, WantElem ElementType
}

func (e *PlaneShapeError) Error() string {
	return fmt.Sprintf("plane (pol=%d, chan=%d): source is %dx%d %s, cube expects %dx%d %s",
		e.Coord.Pol, e.Coord.Chan, e.GotX, e.GotY, e.GotElem, e.WantX, e.WantY, e.WantElem)
}

// InsufficientDiskSpaceError reports that the filesystem rejected the
// footprint reservation outright. Per-plane writes can still fail
// later with ENOSPC when actual blocks cannot be allocated; that is a
// distinct failure surfaced as an ordinary wrapped write error.
type InsufficientDiskSpaceError struct {
	Size int64
	Err  error
}

func (e *InsufficientDiskSpaceError) Error() string {
	return fmt.Sprintf("cannot reserve %d bytes: %v", e.Size, e.Err)
}

func (e *InsufficientDiskSpaceError) Unwrap() error {
	return e.Err
}
