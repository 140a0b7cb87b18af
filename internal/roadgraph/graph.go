package roadgraph

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"citysim/internal/config"
)

const (
	edgeDistance = 0.5 // tile centre to edge
	laneOffset   = 0.1 // right-hand lane offset from the road centre line
	viaPull      = 0.6 // internal nodes are pulled toward the tile centre
)

type NodeID uint64

// Node is a directed waypoint. Next lists the nodes a vehicle may move to
// from here, kept sorted so random choices are reproducible.
type Node struct {
	ID           NodeID
	TileX, TileY int
	Local        Vec
	Next         []NodeID
}

func (n *Node) World() Vec {
	return Vec{X: float64(n.TileX) + n.Local.X, Y: float64(n.TileY) + n.Local.Y}
}

// Road describes the road building at a tile as the graph needs it.
type Road struct {
	Shape    Shape
	Rotation int
}

// TileUpdate is emitted for every UpdateTile call so viewers can rebuild
// the tile's visuals.
type TileUpdate struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Shape    string `json:"shape,omitempty"`
	Rotation int    `json:"rotation"`
	Removed  bool   `json:"removed,omitempty"`
}

type tile struct {
	x, y     int
	shape    Shape
	rotation int
	in, out  [4]NodeID // indexed by Side; 0 when the side has no port
	nodes    []NodeID
}

// Graph is the vehicle network stitched from per-tile node bundles. It is
// not safe for concurrent use.
type Graph struct {
	width, height int
	cfg           config.Vehicles
	rng           *rand.Rand
	log           *slog.Logger

	tiles    []*tile
	nodes    map[NodeID]*Node
	nextNode NodeID

	vehicles    map[VehicleID]*Vehicle
	nextVehicle VehicleID
	nextSpawn   time.Duration

	updates []TileUpdate
}

func New(width, height int, cfg config.Vehicles, rng *rand.Rand, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		width:    width,
		height:   height,
		cfg:      cfg,
		rng:      rng,
		log:      logger,
		tiles:    make([]*tile, width*height),
		nodes:    map[NodeID]*Node{},
		vehicles: map[VehicleID]*Vehicle{},
	}
}

func (g *Graph) inBounds(x, y int) bool { return x >= 0 && y >= 0 && x < g.width && y < g.height }

func (g *Graph) tileAt(x, y int) *tile {
	if !g.inBounds(x, y) {
		return nil
	}
	return g.tiles[y*g.width+x]
}

// UpdateTile rebuilds the bundle at (x,y). A nil road removes it. Callers
// refresh the four neighbours as well when adjacency changes.
func (g *Graph) UpdateTile(x, y int, road *Road) {
	if !g.inBounds(x, y) {
		return
	}
	g.removeTile(x, y)
	if road == nil {
		g.updates = append(g.updates, TileUpdate{X: x, Y: y, Removed: true})
		return
	}
	t := g.buildTile(x, y, road.Shape, road.Rotation)
	g.tiles[y*g.width+x] = t
	for _, s := range allSides {
		g.connect(t, s)
	}
	g.updates = append(g.updates, TileUpdate{X: x, Y: y, Shape: road.Shape.String(), Rotation: road.Rotation})
}

// TakeUpdates returns and clears the pending tile update events.
func (g *Graph) TakeUpdates() []TileUpdate {
	u := g.updates
	g.updates = nil
	return u
}

func (g *Graph) removeTile(x, y int) {
	t := g.tileAt(x, y)
	if t == nil {
		return
	}
	for _, s := range allSides {
		dx, dy := s.Offset()
		nb := g.tileAt(x+dx, y+dy)
		if nb == nil {
			continue
		}
		o := s.Opposite()
		if t.out[s] != 0 && nb.in[o] != 0 {
			g.unlink(t.out[s], nb.in[o])
		}
		if nb.out[o] != 0 && t.in[s] != 0 {
			g.unlink(nb.out[o], t.in[s])
		}
	}
	for _, id := range t.nodes {
		delete(g.nodes, id)
	}
	g.tiles[y*g.width+x] = nil
}

// connect links the matched port pairs across side s. Both directions are
// created together or not at all.
func (g *Graph) connect(t *tile, s Side) {
	dx, dy := s.Offset()
	nb := g.tileAt(t.x+dx, t.y+dy)
	if nb == nil {
		return
	}
	o := s.Opposite()
	if t.out[s] == 0 || t.in[s] == 0 || nb.in[o] == 0 || nb.out[o] == 0 {
		return
	}
	g.link(t.out[s], nb.in[o])
	g.link(nb.out[o], t.in[s])
}

func (g *Graph) buildTile(x, y int, shape Shape, rotation int) *tile {
	if rotation%90 != 0 {
		panic(fmt.Sprintf("roadgraph: rotation %d is not a multiple of 90", rotation))
	}
	rotation = ((rotation % 360) + 360) % 360
	spec := specFor(shape)
	t := &tile{x: x, y: y, shape: shape, rotation: rotation}
	for _, cs := range spec.sides {
		s := cs.Rotate(rotation)
		n := s.normal()
		edge := n.Scale(edgeDistance)
		// Right of the travel direction in y-down coordinates.
		t.in[s] = g.addNode(t, edge.Add(Vec{X: n.Y, Y: -n.X}.Scale(laneOffset)))
		t.out[s] = g.addNode(t, edge.Add(Vec{X: -n.Y, Y: n.X}.Scale(laneOffset)))
	}
	for _, r := range spec.routes {
		from, to := t.in[r.from.Rotate(rotation)], t.out[r.to.Rotate(rotation)]
		if !r.via {
			g.link(from, to)
			continue
		}
		mid := g.nodes[from].Local.Add(g.nodes[to].Local).Scale(0.5 * viaPull)
		m := g.addNode(t, mid)
		g.link(from, m)
		g.link(m, to)
	}
	return t
}

func (g *Graph) addNode(t *tile, local Vec) NodeID {
	g.nextNode++
	id := g.nextNode
	g.nodes[id] = &Node{ID: id, TileX: t.x, TileY: t.y, Local: local}
	t.nodes = append(t.nodes, id)
	return id
}

func (g *Graph) link(from, to NodeID) {
	n := g.nodes[from]
	i := sort.Search(len(n.Next), func(i int) bool { return n.Next[i] >= to })
	if i < len(n.Next) && n.Next[i] == to {
		return
	}
	n.Next = append(n.Next, 0)
	copy(n.Next[i+1:], n.Next[i:])
	n.Next[i] = to
}

func (g *Graph) unlink(from, to NodeID) {
	n, ok := g.nodes[from]
	if !ok {
		return
	}
	for i, id := range n.Next {
		if id == to {
			n.Next = append(n.Next[:i], n.Next[i+1:]...)
			return
		}
	}
}

// Node returns the node with the given id, or nil once its tile is gone.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Nodes returns every node ordered by id.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeadEnds lists nodes with nothing to move to.
func (g *Graph) DeadEnds() []NodeID {
	var ids []NodeID
	for _, n := range g.Nodes() {
		if len(n.Next) == 0 {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (g *Graph) Connected(from, to NodeID) bool {
	n, ok := g.nodes[from]
	if !ok {
		return false
	}
	i := sort.Search(len(n.Next), func(i int) bool { return n.Next[i] >= to })
	return i < len(n.Next) && n.Next[i] == to
}

// Port returns the in or out port node of the tile at (x,y) on side s.
func (g *Graph) Port(x, y int, s Side, out bool) (NodeID, bool) {
	t := g.tileAt(x, y)
	if t == nil {
		return 0, false
	}
	id := t.in[s]
	if out {
		id = t.out[s]
	}
	return id, id != 0
}

func (g *Graph) TileShape(x, y int) (Shape, int, bool) {
	t := g.tileAt(x, y)
	if t == nil {
		return 0, 0, false
	}
	return t.shape, t.rotation, true
}

func (n *Node) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "node %d tile=(%d,%d) local=(%.2f,%.2f)\n", n.ID, n.TileX, n.TileY, n.Local.X, n.Local.Y)
	next := make([]string, len(n.Next))
	for i, id := range n.Next {
		next[i] = fmt.Sprint(id)
	}
	fmt.Fprintf(&b, "  next: [%s]\n", strings.Join(next, " "))
	return b.String()
}
