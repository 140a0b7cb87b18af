package city

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"citysim/internal/roadgraph"
)

type Kind int

const (
	KindRoad Kind = iota + 1
	KindResidential
	KindCommercial
	KindIndustrial
	KindPowerPlant
	KindPowerLine
)

var kindNames = map[Kind]string{
	KindRoad:        "road",
	KindResidential: "residential",
	KindCommercial:  "commercial",
	KindIndustrial:  "industrial",
	KindPowerPlant:  "power-plant",
	KindPowerLine:   "power-line",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseKind maps a wire name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if n == s {
			return k, true
		}
	}
	return 0, false
}

func (k Kind) IsZone() bool {
	return k == KindResidential || k == KindCommercial || k == KindIndustrial
}

func (k Kind) displayName() string {
	switch k {
	case KindRoad:
		return "Road"
	case KindResidential:
		return "Residential Zone"
	case KindCommercial:
		return "Commercial Zone"
	case KindIndustrial:
		return "Industrial Zone"
	case KindPowerPlant:
		return "Power Plant"
	case KindPowerLine:
		return "Power Line"
	}
	panic(fmt.Sprintf("city: unknown building kind %d", int(k)))
}

// Building occupies exactly one tile. Kind selects which payload is set:
// Zone for the three zone kinds, Plant for power plants, Road for roads.
type Building struct {
	ID            uuid.UUID `json:"id"`
	Serial        uint64    `json:"serial"`
	Kind          Kind      `json:"kind"`
	X             int       `json:"x"`
	Y             int       `json:"y"`
	Name          string    `json:"name"`
	Rotation      int       `json:"rotation"`
	HasRoadAccess bool      `json:"hasRoadAccess"`
	PowerSupplied float64   `json:"powerSupplied"`
	PowerRequired float64   `json:"powerRequired"`

	// MeshOutOfDate is set on every visible change. Renderers that poll
	// instead of using a View clear it themselves.
	MeshOutOfDate bool `json:"-"`

	Zone  *Zone       `json:"zone,omitempty"`
	Plant *PowerPlant `json:"plant,omitempty"`
	Road  *Road       `json:"road,omitempty"`

	roadAccess RoadAccessModule
	pending    bool
}

type Road struct {
	Adjacency roadgraph.Adjacency `json:"adjacency"`
	Shape     roadgraph.Shape     `json:"shape"`
}

type PowerPlant struct {
	Capacity float64 `json:"capacity"`
	Consumed float64 `json:"consumed"`
}

func (p *PowerPlant) Available() float64 { return p.Capacity - p.Consumed }

func (c *City) newBuilding(kind Kind, x, y int) *Building {
	c.serial++
	b := &Building{
		ID:     c.newID(),
		Serial: c.serial,
		Kind:   kind,
		X:      x,
		Y:      y,
		Name:   kind.displayName(),
	}
	switch kind {
	case KindRoad:
		b.Road = &Road{}
	case KindResidential, KindCommercial, KindIndustrial:
		b.Zone = c.newZone(kind)
		b.PowerRequired = c.cfg.Zones.PowerRequired
	case KindPowerPlant:
		b.Plant = &PowerPlant{Capacity: c.cfg.Power.PlantCapacity}
	case KindPowerLine:
	}
	return b
}

func (b *Building) IsFullyPowered() bool { return b.PowerSupplied >= b.PowerRequired }

// simulate runs the kind-specific modules for one tick. Road access has
// already been refreshed by the caller.
func (b *Building) simulate(c *City) {
	switch b.Kind {
	case KindResidential, KindCommercial, KindIndustrial:
		b.Zone.simulate(c, b)
	case KindRoad, KindPowerPlant, KindPowerLine:
	default:
		panic(fmt.Sprintf("city: unknown building kind %d at (%d,%d)", int(b.Kind), b.X, b.Y))
	}
}

// dispose releases everything the building owns before it leaves the grid.
func (b *Building) dispose(c *City) {
	if b.Zone == nil {
		return
	}
	if b.Zone.Residents != nil {
		b.Zone.Residents.evictAll(c)
	}
	if b.Zone.Jobs != nil {
		b.Zone.Jobs.layOffAll(c)
	}
}

func (b *Building) Describe(c *City) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%s (%s) #%d %s\n", b.Name, b.Kind, b.Serial, b.ID)
	fmt.Fprintf(&s, "  position: (%d,%d) rotation: %d\n", b.X, b.Y, b.Rotation)
	fmt.Fprintf(&s, "  road access: %t\n", b.HasRoadAccess)
	fmt.Fprintf(&s, "  power: %.1f/%.1f\n", b.PowerSupplied, b.PowerRequired)
	switch {
	case b.Zone != nil:
		s.WriteString(b.Zone.describe(c))
	case b.Plant != nil:
		fmt.Fprintf(&s, "  capacity: %.1f consumed: %.1f\n", b.Plant.Capacity, b.Plant.Consumed)
	case b.Road != nil:
		fmt.Fprintf(&s, "  shape: %s\n", b.Road.Shape)
	}
	return s.String()
}
