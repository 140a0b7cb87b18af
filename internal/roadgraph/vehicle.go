package roadgraph

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type VehicleID uint64

// Vehicle moves from Origin to Destination once per cycle. Both ends are
// node ids; a destination that is no longer in the graph ends the vehicle.
type Vehicle struct {
	ID          VehicleID
	Origin      NodeID
	Destination NodeID
	CreatedAt   time.Duration
	CycleStart  time.Duration
	Position    Vec

	from, to Vec
}

// Opacity fades the vehicle in after creation and out before its lifetime
// ends. Viewers forward it to their materials.
func (v *Vehicle) Opacity(now, fade, lifetime time.Duration) float64 {
	if fade <= 0 {
		return 1
	}
	age := now - v.CreatedAt
	op := clamp(float64(age)/float64(fade), 0, 1)
	if lifetime > 0 {
		op = min(op, clamp(float64(lifetime-age)/float64(fade), 0, 1))
	}
	return op
}

func (v *Vehicle) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "vehicle %d\n", v.ID)
	fmt.Fprintf(&b, "  origin: %d destination: %d\n", v.Origin, v.Destination)
	fmt.Fprintf(&b, "  position: (%.2f,%.2f) created: %s\n", v.Position.X, v.Position.Y, v.CreatedAt)
	return b.String()
}

// Step spawns vehicles on schedule and advances every live vehicle to the
// simulation time now.
func (g *Graph) Step(now time.Duration) {
	if len(g.vehicles) < g.cfg.MaxVehicles && now >= g.nextSpawn {
		if _, ok := g.SpawnVehicle(now); ok {
			g.nextSpawn = now + g.cfg.SpawnInterval
		}
	}
	for _, v := range g.Vehicles() {
		if !g.advance(v, now) {
			delete(g.vehicles, v.ID)
			g.log.Debug("vehicle disposed", "id", v.ID, "age", now-v.CreatedAt)
		}
	}
}

// SpawnVehicle places a vehicle on a random node that leads somewhere.
func (g *Graph) SpawnVehicle(now time.Duration) (*Vehicle, bool) {
	var candidates []*Node
	for _, n := range g.Nodes() {
		if len(n.Next) > 0 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	origin := candidates[g.rng.Intn(len(candidates))]
	dest := g.nodes[origin.Next[g.rng.Intn(len(origin.Next))]]
	return g.addVehicle(now, origin, dest), true
}

func (g *Graph) addVehicle(now time.Duration, origin, dest *Node) *Vehicle {
	g.nextVehicle++
	v := &Vehicle{
		ID:          g.nextVehicle,
		Origin:      origin.ID,
		Destination: dest.ID,
		CreatedAt:   now,
		CycleStart:  now,
		Position:    origin.World(),
		from:        origin.World(),
		to:          dest.World(),
	}
	g.vehicles[v.ID] = v
	return v
}

// advance reports false when the vehicle should be disposed.
func (g *Graph) advance(v *Vehicle, now time.Duration) bool {
	if v.Origin == 0 || v.Destination == 0 {
		return false
	}
	dest, ok := g.nodes[v.Destination]
	if !ok {
		return false
	}
	if g.cfg.MaxLifetime > 0 && now-v.CreatedAt > g.cfg.MaxLifetime {
		return false
	}

	cycle := 1.0
	if dist := v.to.Sub(v.from).Len(); dist > 0 {
		cycleTime := dist / g.cfg.Speed
		cycle = clamp((now - v.CycleStart).Seconds()/cycleTime, 0, 1)
	}
	if cycle < 1 {
		v.Position = v.from.Lerp(v.to, cycle)
		return true
	}

	v.Origin = v.Destination
	v.from = v.to
	v.Position = v.to
	v.CycleStart = now
	if len(dest.Next) == 0 {
		// No path onward; disposed on the next step.
		v.Destination = 0
		return true
	}
	next := g.nodes[dest.Next[g.rng.Intn(len(dest.Next))]]
	v.Destination = next.ID
	v.to = next.World()
	return true
}

// Vehicles returns the live vehicles ordered by id.
func (g *Graph) Vehicles() []*Vehicle {
	out := make([]*Vehicle, 0, len(g.vehicles))
	for _, v := range g.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Graph) VehicleCount() int { return len(g.vehicles) }

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
