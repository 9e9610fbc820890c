package disk

// DiskUsage walks the allocation units of a disk. It is an advance-then-
// inspect cursor: Next moves to the following unit and loads its state,
// IsFree and IsUsed then describe that unit.
//
// Calling IsFree or IsUsed before the first Next, or Next once HasNext is
// false, panics. A cursor makes one pass; ask the disk for a new one to
// start again.
type DiskUsage interface {
	HasNext() bool
	Next()
	IsFree() bool
	IsUsed() bool
}

const (
	usageNotPositioned = "disk: DiskUsage queried before Next"
	usageExhausted     = "disk: DiskUsage.Next called past the last unit"
)

// bitmapUsage is a cursor over a linear map of units.
type bitmapUsage struct {
	length  int
	isFree  func(unit int) bool
	pos     int
	loaded  bool
	current bool
}

// NewBitmapUsage returns a cursor over length units whose state is given by
// isFree. isFree is called once per unit, from Next.
func NewBitmapUsage(length int, isFree func(unit int) bool) DiskUsage {
	return &bitmapUsage{length: length, isFree: isFree, pos: -1}
}

func (u *bitmapUsage) HasNext() bool {
	return u.pos+1 < u.length
}

func (u *bitmapUsage) Next() {
	if !u.HasNext() {
		panic(usageExhausted)
	}
	u.pos++
	u.current = u.isFree(u.pos)
	u.loaded = true
}

func (u *bitmapUsage) IsFree() bool {
	if !u.loaded {
		panic(usageNotPositioned)
	}
	return u.current
}

func (u *bitmapUsage) IsUsed() bool {
	return !u.IsFree()
}

// usedMap converts a per-unit used flag slice into a cursor.
func usedMap(used []bool) DiskUsage {
	return NewBitmapUsage(len(used), func(unit int) bool {
		return !used[unit]
	})
}
