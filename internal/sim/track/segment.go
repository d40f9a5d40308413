// Package track implements the fixed-length track pieces players lay behind them.
package track

import (
	"math"

	"railrush.io/internal/protocol"
	"railrush.io/internal/sim/geom"
)

const (
	DefaultLength = 80
	DefaultWidth  = 8

	// Segments whose direction cross product is below this never intersect.
	parallelEpsilon = 0.001

	color = "#666666"
)

// Segment is immutable after construction; only its age changes.
type Segment struct {
	Start     geom.Vec2
	End       geom.Vec2
	Angle     float64
	Owner     string
	CreatedAt int64 // unix ms
	Length    float64
	Width     float64

	box geom.AABB
}

func New(start geom.Vec2, angle float64, owner string, createdAt int64) Segment {
	return NewSized(start, angle, owner, createdAt, DefaultLength, DefaultWidth)
}

func NewSized(start geom.Vec2, angle float64, owner string, createdAt int64, length, width float64) Segment {
	s := Segment{
		Start:     start,
		End:       start.Add(geom.FromAngle(angle).Scale(length)),
		Angle:     angle,
		Owner:     owner,
		CreatedAt: createdAt,
		Length:    length,
		Width:     width,
	}
	margin := width / 2
	s.box = geom.AABB{
		MinX: math.Min(s.Start.X, s.End.X) - margin,
		MaxX: math.Max(s.Start.X, s.End.X) + margin,
		MinY: math.Min(s.Start.Y, s.End.Y) - margin,
		MaxY: math.Max(s.Start.Y, s.End.Y) + margin,
	}
	return s
}

func (s Segment) Bounds() geom.AABB { return s.box }

// DistanceToPoint is the distance from p to the closest point of the segment.
func (s Segment) DistanceToPoint(p geom.Vec2) float64 {
	d := s.End.Sub(s.Start)
	lenSq := d.LenSq()
	if lenSq == 0 {
		return geom.Distance(p, s.Start)
	}
	t := p.Sub(s.Start).Dot(d) / lenSq
	switch {
	case t <= 0:
		return geom.Distance(p, s.Start)
	case t >= 1:
		return geom.Distance(p, s.End)
	}
	return geom.Distance(p, s.Start.Add(d.Scale(t)))
}

func (s Segment) IsPointOnSegment(p geom.Vec2, tolerance float64) bool {
	if !s.box.Contains(p) {
		return false
	}
	return s.DistanceToPoint(p) <= tolerance
}

// IsPlayerOnSegment uses the player's radius as tolerance.
func (s Segment) IsPlayerOnSegment(p geom.Vec2, size float64) bool {
	return s.IsPointOnSegment(p, size)
}

func (s Segment) Intersects(o Segment) bool {
	if !s.box.Overlaps(o.box) {
		return false
	}
	x1, y1 := s.Start.X, s.Start.Y
	x2, y2 := s.End.X, s.End.Y
	x3, y3 := o.Start.X, o.Start.Y
	x4, y4 := o.End.X, o.End.Y

	denom := (y4-y3)*(x2-x1) - (x4-x3)*(y2-y1)
	if math.Abs(denom) < parallelEpsilon {
		return false
	}
	ua := ((x4-x3)*(y1-y3) - (y4-y3)*(x1-x3)) / denom
	ub := ((x2-x1)*(y1-y3) - (y2-y1)*(x1-x3)) / denom
	return ua >= 0 && ua <= 1 && ub >= 0 && ub <= 1
}

func (s Segment) Direction() geom.Vec2 { return geom.FromAngle(s.Angle) }

func (s Segment) Normal() geom.Vec2 {
	return geom.Vec2{X: -math.Sin(s.Angle), Y: math.Cos(s.Angle)}
}

func (s Segment) Age(now int64) int64 { return now - s.CreatedAt }

// Expired reports age strictly greater than maxAge.
func (s Segment) Expired(now, maxAge int64) bool { return s.Age(now) > maxAge }

func (s Segment) State() protocol.TrackState {
	return protocol.TrackState{
		X:         s.Start.X,
		Y:         s.Start.Y,
		EndX:      s.End.X,
		EndY:      s.End.Y,
		Angle:     s.Angle,
		PlayerID:  s.Owner,
		CreatedAt: s.CreatedAt,
		Color:     color,
		Width:     s.Width,
	}
}
