package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tuning knob of the simulation. Zero values are not
// usable; start from Default() and override.
type Config struct {
	Seed   int64 `yaml:"seed"`
	Width  int   `yaml:"width"`
	Height int   `yaml:"height"`

	TickInterval time.Duration `yaml:"tick_interval"`

	Development Development `yaml:"development"`
	Zones       Zones       `yaml:"zones"`
	Citizens    Citizens    `yaml:"citizens"`
	Power       Power       `yaml:"power"`
	Vehicles    Vehicles    `yaml:"vehicles"`

	// Layout is placed on the empty grid before the first tick.
	Layout []Placement `yaml:"layout"`
}

type Placement struct {
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	Kind string `yaml:"kind"`
}

type Development struct {
	AbandonThreshold int     `yaml:"abandon_threshold"`
	AbandonChance    float64 `yaml:"abandon_chance"`
	ConstructionTime int     `yaml:"construction_time"`
	LevelUpChance    float64 `yaml:"level_up_chance"`
	RedevelopChance  float64 `yaml:"redevelop_chance"`
	MaxLevel         int     `yaml:"max_level"`
}

type Zones struct {
	MaxRoadSearchDistance int     `yaml:"max_road_search_distance"`
	MaxWorkers            int     `yaml:"max_workers"`
	MaxResidents          int     `yaml:"max_residents"`
	ResidentMoveInChance  float64 `yaml:"resident_move_in_chance"`
	PowerRequired         float64 `yaml:"power_required"`
}

type Citizens struct {
	MinWorkingAge        int `yaml:"min_working_age"`
	RetirementAge        int `yaml:"retirement_age"`
	MaxJobSearchDistance int `yaml:"max_job_search_distance"`
}

type Power struct {
	PlantCapacity float64 `yaml:"plant_capacity"`
}

type Vehicles struct {
	Speed         float64       `yaml:"speed"` // tiles per second
	FadeTime      time.Duration `yaml:"fade_time"`
	MaxLifetime   time.Duration `yaml:"max_lifetime"`
	MaxVehicles   int           `yaml:"max_vehicles"`
	SpawnInterval time.Duration `yaml:"spawn_interval"`
}

func Default() Config {
	return Config{
		Seed:         1,
		Width:        16,
		Height:       16,
		TickInterval: time.Second,
		Development: Development{
			AbandonThreshold: 10,
			AbandonChance:    0.25,
			ConstructionTime: 3,
			LevelUpChance:    0.05,
			RedevelopChance:  0.25,
			MaxLevel:         3,
		},
		Zones: Zones{
			MaxRoadSearchDistance: 3,
			MaxWorkers:            2,
			MaxResidents:          2,
			ResidentMoveInChance:  0.5,
			PowerRequired:         10,
		},
		Citizens: Citizens{
			MinWorkingAge:        16,
			RetirementAge:        65,
			MaxJobSearchDistance: 4,
		},
		Power: Power{PlantCapacity: 100},
		Vehicles: Vehicles{
			Speed:         0.5,
			FadeTime:      time.Second,
			MaxLifetime:   120 * time.Second,
			MaxVehicles:   10,
			SpawnInterval: 2 * time.Second,
		},
	}
}

// Load reads a yaml tuning file. Keys missing from the file keep their
// Default() value.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("grid size must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.Development.MaxLevel < 1 {
		errs = append(errs, errors.New("development.max_level must be >= 1"))
	}
	if c.Development.ConstructionTime < 0 || c.Development.AbandonThreshold < 0 {
		errs = append(errs, errors.New("development counters must be >= 0"))
	}
	chances := []struct {
		name string
		p    float64
	}{
		{"development.abandon_chance", c.Development.AbandonChance},
		{"development.level_up_chance", c.Development.LevelUpChance},
		{"development.redevelop_chance", c.Development.RedevelopChance},
		{"zones.resident_move_in_chance", c.Zones.ResidentMoveInChance},
	}
	for _, ch := range chances {
		if ch.p < 0 || ch.p > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", ch.name, ch.p))
		}
	}
	quantities := []struct {
		name string
		v    float64
	}{
		{"zones.max_workers", float64(c.Zones.MaxWorkers)},
		{"zones.max_residents", float64(c.Zones.MaxResidents)},
		{"zones.power_required", c.Zones.PowerRequired},
		{"power.plant_capacity", c.Power.PlantCapacity},
		{"vehicles.max_vehicles", float64(c.Vehicles.MaxVehicles)},
	}
	for _, q := range quantities {
		if q.v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %v", q.name, q.v))
		}
	}
	if c.Zones.MaxRoadSearchDistance < 0 || c.Citizens.MaxJobSearchDistance < 0 {
		errs = append(errs, errors.New("search distances must be >= 0"))
	}
	if c.Citizens.MinWorkingAge > c.Citizens.RetirementAge {
		errs = append(errs, errors.New("citizens.min_working_age exceeds retirement_age"))
	}
	for i, p := range c.Layout {
		if p.X < 0 || p.Y < 0 || p.X >= c.Width || p.Y >= c.Height {
			errs = append(errs, fmt.Errorf("layout[%d] (%d,%d) is outside the grid", i, p.X, p.Y))
		}
	}
	if c.Vehicles.Speed <= 0 {
		errs = append(errs, errors.New("vehicles.speed must be positive"))
	}
	return errors.Join(errs...)
}
