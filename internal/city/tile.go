package city

import (
	"fmt"
	"strings"
)

type Terrain int

const (
	TerrainGrass Terrain = iota
)

func (t Terrain) String() string {
	switch t {
	case TerrainGrass:
		return "grass"
	}
	return fmt.Sprintf("terrain(%d)", int(t))
}

// Tile is one grid cell. Its coordinates never change; only the building
// reference does.
type Tile struct {
	X        int
	Y        int
	Terrain  Terrain
	Building *Building
}

func (t *Tile) Describe(c *City) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tile (%d,%d) terrain=%s\n", t.X, t.Y, t.Terrain)
	if t.Building != nil {
		b.WriteString(t.Building.Describe(c))
	}
	return b.String()
}
