package perception

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"situsim/internal/model"
)

type TargetKind int

const (
	TargetAgent TargetKind = iota
	TargetObject
	TargetEvent
)

// Target identifies what a visibility check is looking at so the target's
// own footprint does not occlude it.
type Target struct {
	Kind     TargetKind
	ID       int
	Position model.Vec3
}

// VisibilityAlgorithm decides whether an in-range, in-view target is actually
// visible from the observer.
type VisibilityAlgorithm interface {
	Visible(observer model.AgentState, target Target, cell model.CellState) bool
}

type AlwaysVisible struct{}

func (AlwaysVisible) Visible(model.AgentState, Target, model.CellState) bool { return true }

// LineOfSight treats obstacle objects as axis-aligned footprints on the X/Z
// plane and samples the sight line against them.
type LineOfSight struct {
	Step float64
}

const defaultSightStep = 0.25

func (l LineOfSight) Visible(observer model.AgentState, target Target, cell model.CellState) bool {
	from := groundPoint(observer.Pose.Position)
	to := groundPoint(target.Position)
	sight := orb.LineString{from, to}
	sightBound := sight.Bound()

	step := l.Step
	if step <= 0 {
		step = defaultSightStep
	}
	length := planar.Distance(from, to)
	samples := int(math.Ceil(length / step))

	for _, obj := range cell.Objects() {
		if !obj.Obstacle {
			continue
		}
		if target.Kind == TargetObject && target.ID == obj.ID {
			continue
		}
		footprint := Footprint(obj)
		if !footprint.Bound().Intersects(sightBound) {
			continue
		}
		if planar.PolygonContains(footprint, from) {
			continue
		}
		for i := 1; i < samples; i++ {
			f := float64(i) / float64(samples)
			p := orb.Point{from[0] + (to[0]-from[0])*f, from[1] + (to[1]-from[1])*f}
			if planar.PolygonContains(footprint, p) {
				return false
			}
		}
	}
	return true
}

func groundPoint(v model.Vec3) orb.Point {
	return orb.Point{v.X, v.Z}
}

// Footprint returns the X/Z rectangle an object occupies.
func Footprint(obj model.EnvObjectState) orb.Polygon {
	hx := math.Abs(obj.Scale.X) / 2
	hz := math.Abs(obj.Scale.Z) / 2
	c := groundPoint(obj.Pose.Position)
	ring := orb.Ring{
		{c[0] - hx, c[1] - hz},
		{c[0] + hx, c[1] - hz},
		{c[0] + hx, c[1] + hz},
		{c[0] - hx, c[1] + hz},
		{c[0] - hx, c[1] - hz},
	}
	return orb.Polygon{ring}
}
