package city

import (
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"citysim/internal/config"
	"citysim/internal/roadgraph"
)

// View receives change notifications. It is the only way the simulation
// talks to a renderer; every call happens synchronously inside Step,
// PlaceBuilding or Bulldoze.
type View interface {
	BuildingsChanged(buildings []*Building)
	BuildingRemoved(x, y int)
	RoadTilesChanged(updates []roadgraph.TileUpdate)
}

type NopView struct{}

func (NopView) BuildingsChanged([]*Building)            {}
func (NopView) BuildingRemoved(int, int)                {}
func (NopView) RoadTilesChanged([]roadgraph.TileUpdate) {}

type Option func(*City)

func WithLogger(l *slog.Logger) Option {
	return func(c *City) { c.log = l }
}

// City owns the grid and drives the simulation. It is not safe for
// concurrent use; hosts serialize Step with placement and removal.
type City struct {
	cfg  config.Config
	rng  *rand.Rand
	log  *slog.Logger
	view View

	width, height int
	tiles         []*Tile
	buildings     map[uuid.UUID]*Building
	citizens      map[uuid.UUID]*Citizen
	roads         *roadgraph.Graph
	power         PowerService
	search        searchView

	tick    uint64
	now     time.Duration
	serial  uint64
	changed []*Building
}

// New builds an empty city from cfg. A nil view discards notifications.
func New(cfg config.Config, view View, opts ...Option) *City {
	if view == nil {
		view = NopView{}
	}
	c := &City{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		log:       slog.Default(),
		view:      view,
		width:     cfg.Width,
		height:    cfg.Height,
		tiles:     make([]*Tile, cfg.Width*cfg.Height),
		buildings: map[uuid.UUID]*Building{},
		citizens:  map[uuid.UUID]*Citizen{},
	}
	for _, opt := range opts {
		opt(c)
	}
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			c.tiles[c.index(x, y)] = &Tile{X: x, Y: y, Terrain: TerrainGrass}
		}
	}
	c.roads = roadgraph.New(c.width, c.height, cfg.Vehicles, c.rng, c.log)
	return c
}

func (c *City) Width() int                      { return c.width }
func (c *City) Height() int                     { return c.height }
func (c *City) Tick() uint64                    { return c.tick }
func (c *City) Now() time.Duration              { return c.now }
func (c *City) Roads() *roadgraph.Graph         { return c.roads }
func (c *City) Config() config.Config           { return c.cfg }
func (c *City) inBounds(x, y int) bool          { return x >= 0 && y >= 0 && x < c.width && y < c.height }
func (c *City) index(x, y int) int              { return y*c.width + x }
func (c *City) chance(p float64) bool           { return c.rng.Float64() < p }
func (c *City) newID() uuid.UUID                { return uuid.Must(uuid.NewRandomFromReader(c.rng)) }
func (c *City) Citizen(id uuid.UUID) *Citizen   { return c.citizens[id] }
func (c *City) Building(id uuid.UUID) *Building { return c.buildings[id] }

// SetView replaces the notification sink. Changes already flushed are not
// replayed; a new view should start from Buildings and the road graph.
func (c *City) SetView(v View) {
	if v == nil {
		v = NopView{}
	}
	c.view = v
}

// Tile returns nil outside the grid.
func (c *City) Tile(x, y int) *Tile {
	if !c.inBounds(x, y) {
		return nil
	}
	return c.tiles[c.index(x, y)]
}

// Step advances the simulation by one tick.
func (c *City) Step() {
	c.tick++
	c.now += c.cfg.TickInterval
	c.search.capture(c)
	for _, t := range c.tiles {
		b := t.Building
		if b == nil {
			continue
		}
		b.roadAccess.update(c, b)
		b.simulate(c)
	}
	c.power.Simulate(c)
	c.roads.Step(c.now)
	c.flush()
}

// PlaceBuilding puts a new building of the given kind on an empty tile. It
// reports false, changing nothing, when the tile is out of bounds or
// occupied. An unknown kind panics.
func (c *City) PlaceBuilding(x, y int, kind Kind) bool {
	t := c.Tile(x, y)
	if t == nil || t.Building != nil {
		return false
	}
	b := c.newBuilding(kind, x, y)
	t.Building = b
	c.buildings[b.ID] = b
	c.markDirty(b)
	if kind == KindRoad {
		c.refreshRoads(x, y)
	}
	c.log.Debug("building placed", "kind", kind, "x", x, "y", y, "id", b.ID)
	c.flush()
	return true
}

// Bulldoze removes the building at (x,y), releasing its residents and
// workers. It reports false when there is nothing to remove.
func (c *City) Bulldoze(x, y int) bool {
	t := c.Tile(x, y)
	if t == nil || t.Building == nil {
		return false
	}
	b := t.Building
	b.dispose(c)
	t.Building = nil
	delete(c.buildings, b.ID)
	if b.Kind == KindRoad {
		c.refreshRoads(x, y)
	}
	c.log.Debug("building removed", "kind", b.Kind, "x", x, "y", y)
	c.view.BuildingRemoved(x, y)
	c.flush()
	return true
}

// refreshRoads reclassifies the road at (x,y) and its four neighbours and
// rebuilds their graph tiles.
func (c *City) refreshRoads(x, y int) {
	cells := [5][2]int{{x, y}, {x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}}
	for i, p := range cells {
		t := c.Tile(p[0], p[1])
		if t == nil {
			continue
		}
		b := t.Building
		if b == nil || b.Kind != KindRoad {
			if i == 0 {
				c.roads.UpdateTile(x, y, nil)
			}
			continue
		}
		adj := c.roadAdjacency(p[0], p[1])
		shape, rot := roadgraph.Classify(adj)
		if adj != b.Road.Adjacency || shape != b.Road.Shape || rot != b.Rotation {
			b.Road.Adjacency, b.Road.Shape, b.Rotation = adj, shape, rot
			c.markDirty(b)
		}
		c.roads.UpdateTile(p[0], p[1], &roadgraph.Road{Shape: shape, Rotation: rot})
	}
}

func (c *City) isRoad(x, y int) bool {
	t := c.Tile(x, y)
	return t != nil && t.Building != nil && t.Building.Kind == KindRoad
}

func (c *City) roadAdjacency(x, y int) roadgraph.Adjacency {
	return roadgraph.Adjacency{
		Top:    c.isRoad(x, y-1),
		Right:  c.isRoad(x+1, y),
		Bottom: c.isRoad(x, y+1),
		Left:   c.isRoad(x-1, y),
	}
}

func (c *City) markDirty(b *Building) {
	b.MeshOutOfDate = true
	if !b.pending {
		b.pending = true
		c.changed = append(c.changed, b)
	}
}

// flush hands pending changes to the view.
func (c *City) flush() {
	if len(c.changed) > 0 {
		changed := c.changed
		c.changed = nil
		for _, b := range changed {
			b.pending = false
		}
		c.view.BuildingsChanged(changed)
	}
	if ups := c.roads.TakeUpdates(); len(ups) > 0 {
		c.view.RoadTilesChanged(ups)
	}
}

// Buildings returns every building in row-major grid order.
func (c *City) Buildings() []*Building {
	var out []*Building
	for _, t := range c.tiles {
		if t.Building != nil {
			out = append(out, t.Building)
		}
	}
	return out
}

// Citizens returns every citizen ordered by id.
func (c *City) Citizens() []*Citizen {
	out := make([]*Citizen, 0, len(c.citizens))
	for _, ct := range c.citizens {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

type Summary struct {
	Tick          uint64  `json:"tick"`
	Population    int     `json:"population"`
	Employed      int     `json:"employed"`
	Jobs          int     `json:"jobs"`
	Developed     int     `json:"developed"`
	Abandoned     int     `json:"abandoned"`
	PowerCapacity float64 `json:"powerCapacity"`
	PowerSupplied float64 `json:"powerSupplied"`
	Vehicles      int     `json:"vehicles"`
}

func (c *City) Summary() Summary {
	s := Summary{Tick: c.tick, Population: len(c.citizens), Vehicles: c.roads.VehicleCount()}
	for _, ct := range c.citizens {
		if ct.State == Employed {
			s.Employed++
		}
	}
	for _, b := range c.Buildings() {
		s.PowerSupplied += b.PowerSupplied
		if b.Plant != nil {
			s.PowerCapacity += b.Plant.Capacity
		}
		if b.Zone == nil {
			continue
		}
		switch b.Zone.Development.State {
		case Developed:
			s.Developed++
		case Abandoned:
			s.Abandoned++
		}
		if b.Zone.Jobs != nil && b.Zone.Development.State == Developed {
			s.Jobs += b.Zone.Jobs.MaxWorkers()
		}
	}
	return s
}
