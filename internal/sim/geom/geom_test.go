package geom

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	if d := Distance(V(0, 0), V(3, 4)); d != 5 {
		t.Fatalf("distance=%v want 5", d)
	}
	if d := DistanceSquared(V(1, 1), V(4, 5)); d != 25 {
		t.Fatalf("distance squared=%v want 25", d)
	}
}

func TestCircles(t *testing.T) {
	if !PointInCircle(V(10, 0), V(0, 0), 10) {
		t.Fatalf("boundary point should be inside")
	}
	if CirclesOverlap(V(0, 0), 10, V(20, 0), 10) {
		t.Fatalf("touching circles should not overlap")
	}
	if !CirclesOverlap(V(0, 0), 10, V(19.9, 0), 10) {
		t.Fatalf("expected overlap")
	}
}

func TestFromAngle(t *testing.T) {
	v := FromAngle(math.Pi / 2)
	if math.Abs(v.X) > 1e-12 || math.Abs(v.Y-1) > 1e-12 {
		t.Fatalf("FromAngle(pi/2)=%+v", v)
	}
}

func TestAABB(t *testing.T) {
	a := AABB{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	b := AABB{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20}
	c := AABB{MinX: 11, MinY: 0, MaxX: 20, MaxY: 5}
	if !a.Overlaps(b) || !b.Overlaps(a) {
		t.Fatalf("edge-touching boxes should overlap")
	}
	if a.Overlaps(c) {
		t.Fatalf("disjoint boxes overlap")
	}
	if !a.Contains(V(10, 0)) || a.Contains(V(10.1, 0)) {
		t.Fatalf("contains mismatch")
	}
	if Clamp(-1, 0, 1) != 0 || Clamp(2, 0, 1) != 1 || Clamp(0.5, 0, 1) != 0.5 {
		t.Fatalf("clamp mismatch")
	}
}
