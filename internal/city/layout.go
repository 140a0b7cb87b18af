package city

import (
	"fmt"

	"citysim/internal/config"
)

// ApplyLayout places every building of ps in order. Placements on occupied
// tiles are skipped; unknown kinds abort with an error.
func (c *City) ApplyLayout(ps []config.Placement) error {
	for i, p := range ps {
		kind, ok := ParseKind(p.Kind)
		if !ok {
			return fmt.Errorf("layout[%d]: unknown building kind %q", i, p.Kind)
		}
		if !c.PlaceBuilding(p.X, p.Y, kind) {
			c.log.Warn("layout placement skipped", "index", i, "x", p.X, "y", p.Y, "kind", p.Kind)
		}
	}
	return nil
}
