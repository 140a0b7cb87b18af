package city

import "sort"

// PowerService distributes plant capacity over the grid once per tick.
type PowerService struct{}

type plantFrontier struct {
	b       *Building
	queue   []*Tile
	head    int
	visited map[int]bool
}

// Simulate resets all supply, then grows one BFS frontier per plant in
// round-robin order (plants ordered by placement serial) so that nearby
// plants share load instead of the first plant draining before the next
// one starts. Power travels through any tile that holds a building.
func (PowerService) Simulate(c *City) {
	var plants []*plantFrontier
	for _, t := range c.tiles {
		b := t.Building
		if b == nil {
			continue
		}
		b.PowerSupplied = 0
		if b.Plant != nil {
			b.Plant.Consumed = 0
			plants = append(plants, &plantFrontier{
				b:       b,
				queue:   []*Tile{t},
				visited: map[int]bool{c.index(t.X, t.Y): true},
			})
		}
	}
	sort.Slice(plants, func(i, j int) bool { return plants[i].b.Serial < plants[j].b.Serial })

	for progress := true; progress; {
		progress = false
		for _, p := range plants {
			plant := p.b.Plant
			if plant.Available() <= 0 || p.head >= len(p.queue) {
				continue
			}
			t := p.queue[p.head]
			p.head++
			progress = true

			b := t.Building
			if need := b.PowerRequired - b.PowerSupplied; need > 0 {
				supply := min(plant.Available(), need)
				b.PowerSupplied += supply
				plant.Consumed += supply
			}
			for _, d := range dirs {
				nx, ny := t.X+d[0], t.Y+d[1]
				if !c.inBounds(nx, ny) {
					continue
				}
				i := c.index(nx, ny)
				if p.visited[i] || c.tiles[i].Building == nil {
					continue
				}
				p.visited[i] = true
				p.queue = append(p.queue, c.tiles[i])
			}
		}
	}
}
