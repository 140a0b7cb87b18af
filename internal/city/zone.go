package city

import (
	"fmt"
	"strings"
)

var zoneStyles = []string{"A", "B", "C"}

// Zone is the payload of residential, commercial and industrial buildings.
// Jobs is set for commercial and industrial zones, Residents for
// residential ones.
type Zone struct {
	Style       string             `json:"style"`
	Development *DevelopmentModule `json:"development"`
	Jobs        *JobsModule        `json:"jobs,omitempty"`
	Residents   *ResidentsModule   `json:"residents,omitempty"`
}

func (c *City) newZone(kind Kind) *Zone {
	dev := &DevelopmentModule{State: Undeveloped, Level: 1}
	z := &Zone{
		Style:       zoneStyles[c.rng.Intn(len(zoneStyles))],
		Development: dev,
	}
	switch kind {
	case KindResidential:
		z.Residents = &ResidentsModule{dev: dev, base: c.cfg.Zones.MaxResidents}
	case KindCommercial, KindIndustrial:
		z.Jobs = &JobsModule{dev: dev, base: c.cfg.Zones.MaxWorkers}
	}
	return z
}

func (z *Zone) simulate(c *City, b *Building) {
	z.Development.simulate(c, b)
	if z.Jobs != nil {
		z.Jobs.simulate(c)
	}
	if z.Residents != nil {
		z.Residents.simulate(c, b)
	}
}

func (z *Zone) describe(c *City) string {
	var s strings.Builder
	d := z.Development
	fmt.Fprintf(&s, "  style: %s\n", z.Style)
	fmt.Fprintf(&s, "  development: %s level=%d abandonment=%d construction=%d\n",
		d.State, d.Level, d.AbandonmentCounter, d.ConstructionCounter)
	if z.Jobs != nil {
		fmt.Fprintf(&s, "  workers: %d/%d\n", len(z.Jobs.Workers), z.Jobs.MaxWorkers())
	}
	if z.Residents != nil {
		fmt.Fprintf(&s, "  residents: %d/%d\n", len(z.Residents.Residents), z.Residents.MaxResidents())
		for _, id := range z.Residents.Residents {
			if ct := c.citizens[id]; ct != nil {
				s.WriteString(ct.Describe(c))
			}
		}
	}
	return s.String()
}

// ipow is base^exp for small non-negative exponents.
func ipow(base, exp int) int {
	n := 1
	for i := 0; i < exp; i++ {
		n *= base
	}
	return n
}
