package roadgraph

import (
	"fmt"
	"math"
)

// Side is one edge of a tile, numbered clockwise from the top so that
// rotating by 90 degrees is a +1 step.
type Side int

const (
	Top Side = iota
	Right
	Bottom
	Left
)

var allSides = [4]Side{Top, Right, Bottom, Left}

func (s Side) Opposite() Side { return (s + 2) % 4 }

// Rotate turns the side clockwise by deg (a multiple of 90).
func (s Side) Rotate(deg int) Side { return Side((int(s) + deg/90) % 4) }

// Offset is the grid step to the neighbour across this side.
func (s Side) Offset() (dx, dy int) {
	switch s {
	case Top:
		return 0, -1
	case Right:
		return 1, 0
	case Bottom:
		return 0, 1
	case Left:
		return -1, 0
	}
	panic(fmt.Sprintf("roadgraph: bad side %d", int(s)))
}

func (s Side) normal() Vec {
	dx, dy := s.Offset()
	return Vec{X: float64(dx), Y: float64(dy)}
}

func (s Side) String() string {
	switch s {
	case Top:
		return "top"
	case Right:
		return "right"
	case Bottom:
		return "bottom"
	case Left:
		return "left"
	}
	return fmt.Sprintf("side(%d)", int(s))
}

type Vec struct{ X, Y float64 }

func (v Vec) Add(o Vec) Vec             { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec             { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(f float64) Vec       { return Vec{v.X * f, v.Y * f} }
func (v Vec) Len() float64              { return math.Hypot(v.X, v.Y) }
func (v Vec) Lerp(o Vec, t float64) Vec { return v.Add(o.Sub(v).Scale(t)) }

// Adjacency holds the four neighbour-is-road flags of a road tile.
type Adjacency struct {
	Top, Right, Bottom, Left bool
}

func (a Adjacency) Has(s Side) bool {
	switch s {
	case Top:
		return a.Top
	case Right:
		return a.Right
	case Bottom:
		return a.Bottom
	case Left:
		return a.Left
	}
	return false
}

func (a Adjacency) count() int {
	n := 0
	for _, s := range allSides {
		if a.Has(s) {
			n++
		}
	}
	return n
}

type Shape int

const (
	ShapeEnd Shape = iota
	ShapeStraight
	ShapeCorner
	ShapeThreeWay
	ShapeFourWay
)

func (s Shape) String() string {
	switch s {
	case ShapeEnd:
		return "end"
	case ShapeStraight:
		return "straight"
	case ShapeCorner:
		return "corner"
	case ShapeThreeWay:
		return "three-way"
	case ShapeFourWay:
		return "four-way"
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type route struct {
	from, to Side
	via      bool // route through an internal midpoint node
}

type shapeSpec struct {
	sides  []Side
	routes []route
}

func crossRoutes(sides []Side) []route {
	var rs []route
	for _, from := range sides {
		for _, to := range sides {
			if from != to {
				rs = append(rs, route{from: from, to: to})
			}
		}
	}
	return rs
}

// Canonical (rotation 0) topologies.
var shapes = map[Shape]shapeSpec{
	ShapeEnd: {
		sides:  []Side{Bottom},
		routes: []route{{from: Bottom, to: Bottom, via: true}},
	},
	ShapeStraight: {
		sides:  []Side{Left, Right},
		routes: []route{{from: Left, to: Right}, {from: Right, to: Left}},
	},
	ShapeCorner: {
		sides:  []Side{Bottom, Right},
		routes: []route{{from: Bottom, to: Right, via: true}, {from: Right, to: Bottom, via: true}},
	},
	ShapeThreeWay: {
		sides:  []Side{Left, Right, Bottom},
		routes: crossRoutes([]Side{Left, Right, Bottom}),
	},
	ShapeFourWay: {
		sides:  allSides[:],
		routes: crossRoutes(allSides[:]),
	},
}

func specFor(s Shape) shapeSpec {
	spec, ok := shapes[s]
	if !ok {
		panic(fmt.Sprintf("roadgraph: unknown road shape %d", int(s)))
	}
	return spec
}

// Classify picks the shape and rotation whose rotated sides match the
// neighbour flags exactly. An isolated road is an end at rotation 0.
func Classify(a Adjacency) (Shape, int) {
	var shape Shape
	switch a.count() {
	case 0:
		return ShapeEnd, 0
	case 1:
		shape = ShapeEnd
	case 2:
		if (a.Left && a.Right) || (a.Top && a.Bottom) {
			shape = ShapeStraight
		} else {
			shape = ShapeCorner
		}
	case 3:
		shape = ShapeThreeWay
	case 4:
		return ShapeFourWay, 0
	}
	spec := specFor(shape)
	for rot := 0; rot < 360; rot += 90 {
		match := true
		for _, s := range spec.sides {
			if !a.Has(s.Rotate(rot)) {
				match = false
				break
			}
		}
		if match {
			return shape, rot
		}
	}
	panic(fmt.Sprintf("roadgraph: no rotation of %s matches %+v", shape, a))
}
