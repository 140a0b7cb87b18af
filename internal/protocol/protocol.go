// Package protocol defines the JSON messages exchanged with websocket
// clients. Every message is an Envelope whose payload depends on Type.
package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"citysim/internal/city"
	"citysim/internal/roadgraph"
)

// Server -> client events.
const (
	EventFullState      = "full_state"
	EventBuildingUpdate = "building_update"
	EventRoadUpdate     = "road_update"
	EventBulldozed      = "bulldozed"
	EventTick           = "tick"
	EventTraffic        = "traffic"
	EventError          = "error"
)

// Client -> server actions.
const (
	ActionPlaceBuilding = "place_building"
	ActionBulldoze      = "bulldoze"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type PlaceBuildingPayload struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Kind string `json:"kind"`
}

type BulldozePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type FullState struct {
	Width     int                    `json:"width"`
	Height    int                    `json:"height"`
	Tick      uint64                 `json:"tick"`
	Buildings []*city.Building       `json:"buildings"`
	Roads     []roadgraph.TileUpdate `json:"roads"`
}

type BuildingUpdate struct {
	Buildings []*city.Building `json:"buildings"`
}

type RoadUpdate struct {
	Tiles []roadgraph.TileUpdate `json:"tiles"`
}

type Bulldozed struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type VehicleState struct {
	ID      uint64  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Opacity float64 `json:"opacity"`
}

type Traffic struct {
	Vehicles []VehicleState `json:"vehicles"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode wraps payload in an Envelope of type t.
func Encode(t string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

//go:embed action.schema.json
var actionSchemaJSON string

var actionSchema = jsonschema.MustCompileString("action.schema.json", actionSchemaJSON)

// Action is a decoded client request. Exactly one of Place and Bulldoze is
// set, matching Type.
type Action struct {
	Type     string
	Place    *PlaceBuildingPayload
	Bulldoze *BulldozePayload
}

// DecodeAction validates data against the action schema and decodes it.
func DecodeAction(data []byte) (Action, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	if err := actionSchema.Validate(doc); err != nil {
		return Action{}, fmt.Errorf("invalid action: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Action{}, fmt.Errorf("decode envelope: %w", err)
	}
	a := Action{Type: env.Type}
	switch env.Type {
	case ActionPlaceBuilding:
		a.Place = &PlaceBuildingPayload{}
		if err := json.Unmarshal(env.Payload, a.Place); err != nil {
			return Action{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	case ActionBulldoze:
		a.Bulldoze = &BulldozePayload{}
		if err := json.Unmarshal(env.Payload, a.Bulldoze); err != nil {
			return Action{}, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}
	return a, nil
}

// Apply runs the action against c and reports whether anything changed.
func (a Action) Apply(c *city.City) (bool, error) {
	switch {
	case a.Place != nil:
		kind, ok := city.ParseKind(a.Place.Kind)
		if !ok {
			return false, fmt.Errorf("unknown building kind %q", a.Place.Kind)
		}
		return c.PlaceBuilding(a.Place.X, a.Place.Y, kind), nil
	case a.Bulldoze != nil:
		return c.Bulldoze(a.Bulldoze.X, a.Bulldoze.Y), nil
	}
	return false, fmt.Errorf("empty action %q", a.Type)
}

// Snapshot builds the full_state payload for c.
func Snapshot(c *city.City) FullState {
	s := FullState{Width: c.Width(), Height: c.Height(), Tick: c.Tick(), Buildings: c.Buildings()}
	for _, b := range s.Buildings {
		if b.Kind != city.KindRoad {
			continue
		}
		if shape, rot, ok := c.Roads().TileShape(b.X, b.Y); ok {
			s.Roads = append(s.Roads, roadgraph.TileUpdate{X: b.X, Y: b.Y, Shape: shape.String(), Rotation: rot})
		}
	}
	return s
}

// TrafficOf reports every live vehicle of c.
func TrafficOf(c *city.City) Traffic {
	cfg := c.Config().Vehicles
	t := Traffic{Vehicles: []VehicleState{}}
	for _, v := range c.Roads().Vehicles() {
		t.Vehicles = append(t.Vehicles, VehicleState{
			ID:      uint64(v.ID),
			X:       v.Position.X,
			Y:       v.Position.Y,
			Opacity: v.Opacity(c.Now(), cfg.FadeTime, cfg.MaxLifetime),
		})
	}
	return t
}
