package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Extent is a size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero.
func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Clamp limits e to the inclusive range [min, max] per dimension.
func (e Extent) Clamp(min, max Extent) Extent {
	return Extent{
		Width:  clampUint32(e.Width, min.Width, max.Width),
		Height: clampUint32(e.Height, min.Height, max.Height),
	}
}

func clampUint32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi != 0 && v > hi {
		return hi
	}
	return v
}

// Point is a position in window-local pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Version is a Vulkan style API version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Less reports whether v is an older version than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses "major.minor" or "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
