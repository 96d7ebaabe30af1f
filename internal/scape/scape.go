// Package scape holds the committed world: agents, objects and events, the
// partition of the ground plane into cells, per-cycle snapshots and the
// commit step that applies agent stimuli.
package scape

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"situsim/internal/model"
)

// ErrPartitionInconsistent is returned when a position cannot be mapped to a
// cell. It is fatal to the cycle that hit it.
var ErrPartitionInconsistent = errors.New("partition inconsistent")

// Partition maps positions to cells. CellOf must be deterministic.
type Partition interface {
	CellOf(p model.Vec3) (model.CellID, error)
	// Neighbourhood lists the cells a sensor at p may need to see: its own
	// cell plus every cell within the border margin.
	Neighbourhood(p model.Vec3) ([]model.CellID, error)
	Bound(id model.CellID) orb.Bound
}

// Grid partitions the X/Z plane into square cells of side Size.
type Grid struct {
	Size   float64
	Margin float64
}

func NewGrid(size, margin float64) (Grid, error) {
	if size <= 0 || math.IsInf(size, 0) || math.IsNaN(size) {
		return Grid{}, fmt.Errorf("cell size must be positive: %v", size)
	}
	if margin < 0 || math.IsNaN(margin) || math.IsInf(margin, 0) {
		return Grid{}, fmt.Errorf("border margin must be non-negative: %v", margin)
	}
	return Grid{Size: size, Margin: margin}, nil
}

func (g Grid) CellOf(p model.Vec3) (model.CellID, error) {
	if !p.IsFinite() {
		return model.CellID{}, fmt.Errorf("%w: position %+v", ErrPartitionInconsistent, p)
	}
	return g.cellAt(p.X, p.Z)
}

// maxCellIndex bounds cell coordinates so that distinct cells never collapse
// onto the same integer.
const maxCellIndex = math.MaxInt32

func (g Grid) cellAt(x, z float64) (model.CellID, error) {
	cx := math.Floor(x / g.Size)
	cz := math.Floor(z / g.Size)
	if math.Abs(cx) > maxCellIndex || math.Abs(cz) > maxCellIndex {
		return model.CellID{}, fmt.Errorf("%w: position (%v, %v) is outside the grid", ErrPartitionInconsistent, x, z)
	}
	return model.CellID{X: int(cx), Z: int(cz)}, nil
}

func (g Grid) Neighbourhood(p model.Vec3) ([]model.CellID, error) {
	own, err := g.CellOf(p)
	if err != nil {
		return nil, err
	}
	reach := orb.Point{p.X, p.Z}.Bound().Pad(g.Margin)
	lo, err := g.cellAt(reach.Min[0], reach.Min[1])
	if err != nil {
		return nil, err
	}
	hi, err := g.cellAt(reach.Max[0], reach.Max[1])
	if err != nil {
		return nil, err
	}

	ids := []model.CellID{own}
	for x := lo.X; x <= hi.X; x++ {
		for z := lo.Z; z <= hi.Z; z++ {
			id := model.CellID{X: x, Z: z}
			if id != own {
				ids = append(ids, id)
			}
		}
	}
	model.SortCellIDs(ids[1:])
	return ids, nil
}

func (g Grid) Bound(id model.CellID) orb.Bound {
	minX := float64(id.X) * g.Size
	minZ := float64(id.Z) * g.Size
	return orb.Bound{
		Min: orb.Point{minX, minZ},
		Max: orb.Point{minX + g.Size, minZ + g.Size},
	}
}
