package roadgraph

import (
	"math/rand"
	"testing"
	"time"

	"citysim/internal/config"
)

type roadSet map[[2]int]bool

func newTestGraph(t *testing.T, w, h int) *Graph {
	t.Helper()
	cfg := config.Default().Vehicles
	return New(w, h, cfg, rand.New(rand.NewSource(7)), nil)
}

func (rs roadSet) adjacency(x, y int) Adjacency {
	return Adjacency{
		Top:    rs[[2]int{x, y - 1}],
		Right:  rs[[2]int{x + 1, y}],
		Bottom: rs[[2]int{x, y + 1}],
		Left:   rs[[2]int{x - 1, y}],
	}
}

// refresh mirrors what the city does on placement: the tile and its four
// neighbours are reclassified and rebuilt.
func (rs roadSet) refresh(g *Graph, x, y int) {
	cells := [][2]int{{x, y}, {x, y - 1}, {x + 1, y}, {x, y + 1}, {x - 1, y}}
	for _, c := range cells {
		if !rs[c] {
			if c == [2]int{x, y} {
				g.UpdateTile(x, y, nil)
			}
			continue
		}
		shape, rot := Classify(rs.adjacency(c[0], c[1]))
		g.UpdateTile(c[0], c[1], &Road{Shape: shape, Rotation: rot})
	}
}

func (rs roadSet) place(g *Graph, x, y int) {
	rs[[2]int{x, y}] = true
	rs.refresh(g, x, y)
}

func (rs roadSet) remove(g *Graph, x, y int) {
	delete(rs, [2]int{x, y})
	rs.refresh(g, x, y)
}

func assertSymmetric(t *testing.T, g *Graph) {
	t.Helper()
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			for _, s := range allSides {
				dx, dy := s.Offset()
				aOut, ok1 := g.Port(x, y, s, true)
				bIn, ok2 := g.Port(x+dx, y+dy, s.Opposite(), false)
				if !ok1 || !ok2 || !g.Connected(aOut, bIn) {
					continue
				}
				bOut, _ := g.Port(x+dx, y+dy, s.Opposite(), true)
				aIn, _ := g.Port(x, y, s, false)
				if !g.Connected(bOut, aIn) {
					t.Fatalf("(%d,%d) %s out->in exists but reverse pair is missing", x, y, s)
				}
			}
		}
	}
	for _, n := range g.Nodes() {
		for _, id := range n.Next {
			if g.Node(id) == nil {
				t.Fatalf("node %d links to missing node %d", n.ID, id)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		adj   Adjacency
		shape Shape
		rot   int
	}{
		{"isolated", Adjacency{}, ShapeEnd, 0},
		{"end bottom", Adjacency{Bottom: true}, ShapeEnd, 0},
		{"end left", Adjacency{Left: true}, ShapeEnd, 90},
		{"end top", Adjacency{Top: true}, ShapeEnd, 180},
		{"end right", Adjacency{Right: true}, ShapeEnd, 270},
		{"straight horizontal", Adjacency{Left: true, Right: true}, ShapeStraight, 0},
		{"straight vertical", Adjacency{Top: true, Bottom: true}, ShapeStraight, 90},
		{"corner bottom-right", Adjacency{Bottom: true, Right: true}, ShapeCorner, 0},
		{"corner left-bottom", Adjacency{Left: true, Bottom: true}, ShapeCorner, 90},
		{"corner top-left", Adjacency{Top: true, Left: true}, ShapeCorner, 180},
		{"corner right-top", Adjacency{Right: true, Top: true}, ShapeCorner, 270},
		{"tee missing top", Adjacency{Left: true, Right: true, Bottom: true}, ShapeThreeWay, 0},
		{"tee missing right", Adjacency{Top: true, Bottom: true, Left: true}, ShapeThreeWay, 90},
		{"tee missing bottom", Adjacency{Top: true, Left: true, Right: true}, ShapeThreeWay, 180},
		{"tee missing left", Adjacency{Top: true, Right: true, Bottom: true}, ShapeThreeWay, 270},
		{"four-way", Adjacency{true, true, true, true}, ShapeFourWay, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shape, rot := Classify(tc.adj)
			if shape != tc.shape || rot != tc.rot {
				t.Fatalf("Classify(%+v)=%s/%d want %s/%d", tc.adj, shape, rot, tc.shape, tc.rot)
			}
		})
	}
}

func TestCornerWiring(t *testing.T) {
	g := newTestGraph(t, 3, 3)
	g.UpdateTile(1, 1, &Road{Shape: ShapeCorner, Rotation: 0})
	bIn, _ := g.Port(1, 1, Bottom, false)
	rOut, _ := g.Port(1, 1, Right, true)
	rIn, _ := g.Port(1, 1, Right, false)
	bOut, _ := g.Port(1, 1, Bottom, true)
	if _, ok := g.Port(1, 1, Top, false); ok {
		t.Fatalf("corner should have no top port")
	}

	in := g.Node(bIn)
	if len(in.Next) != 1 {
		t.Fatalf("bottom.in next=%v", in.Next)
	}
	m1 := g.Node(in.Next[0])
	if len(m1.Next) != 1 || m1.Next[0] != rOut {
		t.Fatalf("bottom.in should reach right.out through one midpoint, got %v", m1.Next)
	}
	m2 := g.Node(g.Node(rIn).Next[0])
	if m2.ID == m1.ID || len(m2.Next) != 1 || m2.Next[0] != bOut {
		t.Fatalf("right.in should reach bottom.out through its own midpoint")
	}
}

func TestRotationMovesPorts(t *testing.T) {
	g := newTestGraph(t, 3, 3)
	g.UpdateTile(1, 1, &Road{Shape: ShapeStraight, Rotation: 90})
	for _, s := range []Side{Top, Bottom} {
		if _, ok := g.Port(1, 1, s, true); !ok {
			t.Fatalf("vertical straight missing %s port", s)
		}
	}
	for _, s := range []Side{Left, Right} {
		if _, ok := g.Port(1, 1, s, true); ok {
			t.Fatalf("vertical straight has unexpected %s port", s)
		}
	}
}

func TestLoopHasNoDeadEnds(t *testing.T) {
	g := newTestGraph(t, 4, 4)
	rs := roadSet{}
	for _, c := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		rs.place(g, c[0], c[1])
	}
	for _, c := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 2}} {
		shape, _, ok := g.TileShape(c[0], c[1])
		if !ok || shape != ShapeCorner {
			t.Fatalf("tile %v shape=%s ok=%v", c, shape, ok)
		}
	}
	if dead := g.DeadEnds(); len(dead) != 0 {
		t.Fatalf("loop has dead ends: %v", dead)
	}
	assertSymmetric(t, g)
}

func TestGridOfRoadsStaysSymmetric(t *testing.T) {
	g := newTestGraph(t, 6, 6)
	rs := roadSet{}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 40; i++ {
		x, y := rng.Intn(6), rng.Intn(6)
		if rs[[2]int{x, y}] && rng.Intn(2) == 0 {
			rs.remove(g, x, y)
		} else {
			rs.place(g, x, y)
		}
		assertSymmetric(t, g)
	}
	// Every interior shared edge between two roads is linked both ways.
	for c := range rs {
		for _, s := range allSides {
			dx, dy := s.Offset()
			if !rs[[2]int{c[0] + dx, c[1] + dy}] {
				continue
			}
			out, _ := g.Port(c[0], c[1], s, true)
			in, _ := g.Port(c[0]+dx, c[1]+dy, s.Opposite(), false)
			if !g.Connected(out, in) {
				t.Fatalf("roads %v and %v share an edge but are not linked", c, [2]int{c[0] + dx, c[1] + dy})
			}
		}
	}
}

func TestRemovalDropsNodesAndEmitsEvents(t *testing.T) {
	g := newTestGraph(t, 4, 4)
	rs := roadSet{}
	rs.place(g, 1, 1)
	rs.place(g, 2, 1)
	g.TakeUpdates()

	rs.remove(g, 2, 1)
	if _, _, ok := g.TileShape(2, 1); ok {
		t.Fatalf("tile (2,1) still in graph")
	}
	ups := g.TakeUpdates()
	if len(ups) != 2 || !ups[0].Removed || ups[1].X != 1 {
		t.Fatalf("updates=%+v", ups)
	}
	if shape, _, _ := g.TileShape(1, 1); shape != ShapeEnd {
		t.Fatalf("remaining tile shape=%s", shape)
	}
	for _, n := range g.Nodes() {
		if n.TileX == 2 && n.TileY == 1 {
			t.Fatalf("node %d of removed tile is still live", n.ID)
		}
	}
	if len(g.TakeUpdates()) != 0 {
		t.Fatalf("TakeUpdates should clear the queue")
	}
}

func TestVehicleDisposedWhenDestinationRemoved(t *testing.T) {
	g := newTestGraph(t, 5, 5)
	rs := roadSet{}
	for x := 0; x < 5; x++ {
		rs.place(g, x, 2)
	}
	v, ok := g.SpawnVehicle(0)
	if !ok {
		t.Fatalf("no vehicle spawned")
	}
	dest := g.Node(v.Destination)
	rs.remove(g, dest.TileX, dest.TileY)

	g.cfg.MaxVehicles = 0
	g.Step(100 * time.Millisecond)
	if g.VehicleCount() != 0 {
		t.Fatalf("vehicle with dangling destination survived: %s", v.Describe())
	}
}

func TestVehicleTraversal(t *testing.T) {
	g := newTestGraph(t, 5, 1)
	g.cfg.MaxVehicles = 0
	g.cfg.MaxLifetime = 10 * time.Second
	g.cfg.Speed = 0.5
	rs := roadSet{}
	for x := 0; x < 5; x++ {
		rs.place(g, x, 0)
	}
	// left.in -> right.out across a straight tile is one tile long.
	o, _ := g.Port(1, 0, Left, false)
	d, _ := g.Port(1, 0, Right, true)
	v := g.addVehicle(0, g.Node(o), g.Node(d))
	from, to := g.Node(o).World(), g.Node(d).World()

	g.Step(time.Second)
	if want := from.Lerp(to, 0.5); v.Position.Sub(want).Len() > 1e-9 {
		t.Fatalf("midway position=%v want %v", v.Position, want)
	}

	g.Step(2 * time.Second)
	if v.Origin != d {
		t.Fatalf("origin=%d want %d", v.Origin, d)
	}
	next, _ := g.Port(2, 0, Left, false)
	if v.Destination != next || !g.Connected(v.Origin, v.Destination) {
		t.Fatalf("destination=%d want the next tile's in port %d", v.Destination, next)
	}

	g.Step(11 * time.Second)
	if g.VehicleCount() != 0 {
		t.Fatalf("vehicle outlived max lifetime")
	}
}

func TestSpawnSchedule(t *testing.T) {
	g := newTestGraph(t, 3, 1)
	g.cfg.MaxVehicles = 2
	g.cfg.SpawnInterval = time.Second
	g.cfg.MaxLifetime = time.Hour
	g.Step(0)
	if g.VehicleCount() != 0 {
		t.Fatalf("spawned on an empty graph")
	}
	rs := roadSet{}
	rs.place(g, 0, 0)
	rs.place(g, 1, 0)
	rs.place(g, 2, 0)
	g.Step(0)
	g.Step(500 * time.Millisecond)
	if g.VehicleCount() != 1 {
		t.Fatalf("count=%d after first interval", g.VehicleCount())
	}
	g.Step(time.Second)
	g.Step(2 * time.Second)
	if g.VehicleCount() > 2 {
		t.Fatalf("count=%d exceeds max", g.VehicleCount())
	}
}

func TestOpacityFades(t *testing.T) {
	v := &Vehicle{CreatedAt: 0}
	fade, life := time.Second, 10*time.Second
	if op := v.Opacity(500*time.Millisecond, fade, life); op != 0.5 {
		t.Fatalf("fade in=%v", op)
	}
	if op := v.Opacity(5*time.Second, fade, life); op != 1 {
		t.Fatalf("mid life=%v", op)
	}
	if op := v.Opacity(9500*time.Millisecond, fade, life); op != 0.5 {
		t.Fatalf("fade out=%v", op)
	}
}
