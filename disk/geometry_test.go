package disk

import (
	"testing"

	"emperror.dev/errors"
)

func TestDiskSize(t *testing.T) {
	if Disk525Size != 143360 {
		t.Errorf("Wrong size got %d", Disk525Size)
	}
	if Disk800KSize != 819200 {
		t.Errorf("Wrong 800K size got %d", Disk800KSize)
	}
}

func TestProdosSkewSelfInverse(t *testing.T) {
	for s := 0; s < SectorsPerTrack; s++ {
		if prodosSkew[prodosSkew[s]] != s {
			t.Errorf("skew of skew of %d is %d", s, prodosSkew[prodosSkew[s]])
		}
	}
}

func TestOffsetInjective(t *testing.T) {
	for _, order := range []SectorOrder{OrderDOS, OrderProDOS, Order2IMG} {
		g, err := NewGeometry(order, Disk525Size+headerSize(order))
		if err != nil {
			t.Fatalf("%s: %v", order, err)
		}
		seen := map[int]bool{}
		for tr := 0; tr < g.Tracks; tr++ {
			for s := 0; s < SectorsPerTrack; s++ {
				off, err := g.Offset(tr, s)
				if err != nil {
					t.Fatalf("%s: T%d S%d: %v", order, tr, s, err)
				}
				if off < headerSize(order) || off+SectorSize > g.PhysicalSize() {
					t.Errorf("%s: T%d S%d offset %d outside image", order, tr, s, off)
				}
				if off%SectorSize != headerSize(order)%SectorSize {
					t.Errorf("%s: T%d S%d offset %d not sector aligned", order, tr, s, off)
				}
				if seen[off] {
					t.Errorf("%s: offset %d used twice", order, off)
				}
				seen[off] = true

				rt, rs, err := g.Locate(off)
				if err != nil || rt != tr || rs != s {
					t.Errorf("%s: Locate(%d) = T%d S%d %v, want T%d S%d", order, off, rt, rs, err, tr, s)
				}
			}
		}
		if len(seen) != Tracks525*SectorsPerTrack {
			t.Errorf("%s: %d distinct offsets", order, len(seen))
		}
	}
}

func TestOffsetValues(t *testing.T) {
	tests := []struct {
		order  SectorOrder
		track  int
		sector int
		want   int
	}{
		{OrderDOS, 0, 0, 0},
		{OrderDOS, 17, 0, 17 * TrackSize},
		{OrderDOS, 1, 2, TrackSize + 2*SectorSize},
		{OrderProDOS, 0, 1, 0x0e * SectorSize},
		{OrderProDOS, 0, 15, 15 * SectorSize},
		{OrderProDOS, 2, 14, 2*TrackSize + SectorSize},
		{Order2IMG, 0, 0, Header2IMGSize},
		{Order2IMG, 0, 1, Header2IMGSize + 0x0e*SectorSize},
	}
	for _, tt := range tests {
		got, err := PhysicalOffset(tt.track, tt.sector, tt.order, Disk525Size+headerSize(tt.order))
		if err != nil {
			t.Errorf("%s T%d S%d: %v", tt.order, tt.track, tt.sector, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s T%d S%d: got %d, want %d", tt.order, tt.track, tt.sector, got, tt.want)
		}
	}
}

func TestOffsetOutOfRange(t *testing.T) {
	g, err := NewGeometry(OrderDOS, Disk525Size)
	if err != nil {
		t.Fatal(err)
	}
	for _, ts := range [][2]int{{-1, 0}, {35, 0}, {0, 16}, {0, -1}} {
		if _, err := g.Offset(ts[0], ts[1]); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("T%d S%d: expected ErrInvalidGeometry, got %v", ts[0], ts[1], err)
		}
	}
	if _, _, err := g.Locate(Disk525Size); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("Locate past end: got %v", err)
	}
	if _, _, err := g.Locate(10); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("Locate unaligned: got %v", err)
	}
}

func TestGeometrySizes(t *testing.T) {
	if _, err := NewGeometry(OrderDOS, 1000); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("odd size accepted: %v", err)
	}
	if _, err := NewGeometry(OrderUnknown, Disk525Size); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("unknown order accepted: %v", err)
	}
	g, err := NewGeometry(OrderProDOS, Disk800KSize)
	if err != nil {
		t.Fatal(err)
	}
	if g.Tracks != 200 || g.Blocks() != 1600 {
		t.Errorf("800K geometry: %d tracks, %d blocks", g.Tracks, g.Blocks())
	}
}

func TestBlockAddress(t *testing.T) {
	g, _ := NewGeometry(OrderProDOS, Disk525Size)
	seen := map[[2]int]bool{}
	for b := 0; b < g.Blocks(); b++ {
		tr, secs, err := g.BlockAddress(b)
		if err != nil {
			t.Fatal(err)
		}
		if tr != b/8 {
			t.Errorf("block %d on track %d", b, tr)
		}
		for _, s := range secs {
			key := [2]int{tr, s}
			if seen[key] {
				t.Errorf("T%d S%d in two blocks", tr, s)
			}
			seen[key] = true
		}
	}
	if _, _, err := g.BlockAddress(280); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("block 280: %v", err)
	}
}

func TestParseSectorOrder(t *testing.T) {
	for in, want := range map[string]SectorOrder{
		"dos": OrderDOS, "DO": OrderDOS, "prodos": OrderProDOS, "po": OrderProDOS, "2mg": Order2IMG,
	} {
		got, err := ParseSectorOrder(in)
		if err != nil || got != want {
			t.Errorf("%s: got %s %v", in, got, err)
		}
	}
	if _, err := ParseSectorOrder("nib"); err == nil {
		t.Error("nib accepted")
	}
}
