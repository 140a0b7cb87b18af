package city

var dirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// FindTile is a breadth-first search over 4-connected neighbours starting at
// (x,y). Tiles farther than maxDistance (Manhattan) from the start are never
// queued and each tile is visited at most once. It returns the first tile in
// BFS order that satisfies pred, or nil.
func (c *City) FindTile(x, y int, pred func(*Tile) bool, maxDistance int) *Tile {
	start := c.Tile(x, y)
	if start == nil {
		return nil
	}
	visited := map[int]bool{c.index(x, y): true}
	queue := []*Tile{start}
	for head := 0; head < len(queue); head++ {
		t := queue[head]
		if pred(t) {
			return t
		}
		for _, d := range dirs {
			nx, ny := t.X+d[0], t.Y+d[1]
			if !c.inBounds(nx, ny) || abs(nx-x)+abs(ny-y) > maxDistance {
				continue
			}
			i := c.index(nx, ny)
			if visited[i] {
				continue
			}
			visited[i] = true
			queue = append(queue, c.tiles[i])
		}
	}
	return nil
}

// searchView is what bounded searches see during a tick: the grid as it was
// when the tick started. Searches therefore do not depend on the order in
// which tiles are simulated; commits still check live state.
type searchView struct {
	roads []bool
	jobs  []int
	width int
}

func (v *searchView) capture(c *City) {
	n := len(c.tiles)
	if len(v.roads) != n {
		v.roads = make([]bool, n)
		v.jobs = make([]int, n)
	}
	v.width = c.width
	for i, t := range c.tiles {
		v.roads[i] = false
		v.jobs[i] = 0
		b := t.Building
		if b == nil {
			continue
		}
		v.roads[i] = b.Kind == KindRoad
		if b.Zone != nil && b.Zone.Jobs != nil {
			v.jobs[i] = b.Zone.Jobs.AvailableJobs()
		}
	}
}

func (v *searchView) hasRoad(t *Tile) bool { return v.roads[t.Y*v.width+t.X] }
func (v *searchView) hiring(t *Tile) bool  { return v.jobs[t.Y*v.width+t.X] > 0 }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
