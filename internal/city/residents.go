package city

import "github.com/google/uuid"

// ResidentsModule owns the citizens living in a residential zone. Removing
// an id from Residents removes the citizen from the city.
type ResidentsModule struct {
	Residents []uuid.UUID `json:"residents"`

	dev  *DevelopmentModule
	base int
}

func (m *ResidentsModule) MaxResidents() int { return ipow(m.base, m.dev.Level) }

func (m *ResidentsModule) simulate(c *City, b *Building) {
	if m.dev.State == Abandoned {
		m.evictAll(c)
		return
	}
	if m.dev.State == Developed && len(m.Residents) < m.MaxResidents() &&
		c.chance(c.cfg.Zones.ResidentMoveInChance) {
		ct := c.newCitizen(b)
		m.Residents = append(m.Residents, ct.ID)
		c.log.Debug("citizen moved in", "citizen", ct.Name, "x", b.X, "y", b.Y)
		c.markDirty(b)
	}
	for _, id := range m.Residents {
		c.citizens[id].simulate(c)
	}
}

func (m *ResidentsModule) evictAll(c *City) {
	for _, id := range m.Residents {
		ct := c.citizens[id]
		if ct == nil {
			continue
		}
		if w := c.workplaceOf(ct); w != nil {
			w.Zone.Jobs.release(ct.ID)
			c.markDirty(w)
		}
		delete(c.citizens, id)
	}
	m.Residents = nil
}
