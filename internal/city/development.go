package city

type DevelopmentState string

const (
	Undeveloped       DevelopmentState = "undeveloped"
	UnderConstruction DevelopmentState = "under_construction"
	Developed         DevelopmentState = "developed"
	Abandoned         DevelopmentState = "abandoned"
)

// DevelopmentModule is the per-zone lifecycle. Level only means something
// while the zone is developed.
type DevelopmentModule struct {
	State               DevelopmentState `json:"state"`
	Level               int              `json:"level"`
	AbandonmentCounter  int              `json:"abandonmentCounter"`
	ConstructionCounter int              `json:"constructionCounter"`
}

// simulate advances the state machine by one tick. The abandonment counter
// is updated before the switch so the same tick's road access and power
// drive both the counter and the transition.
func (m *DevelopmentModule) simulate(c *City, b *Building) {
	cfg := c.cfg.Development
	healthy := b.HasRoadAccess && b.IsFullyPowered()
	if healthy {
		m.AbandonmentCounter = 0
	} else {
		m.AbandonmentCounter++
	}

	prev, prevLevel := m.State, m.Level
	switch m.State {
	case Undeveloped:
		if healthy && c.chance(cfg.RedevelopChance) {
			m.State = UnderConstruction
			m.ConstructionCounter = 0
		}
	case UnderConstruction:
		m.ConstructionCounter++
		if m.ConstructionCounter >= cfg.ConstructionTime {
			m.State = Developed
			m.Level = 1
			m.ConstructionCounter = 0
		}
	case Developed:
		if m.AbandonmentCounter > cfg.AbandonThreshold {
			if c.chance(cfg.AbandonChance) {
				m.State = Abandoned
				m.AbandonmentCounter = 0
			}
		} else if healthy && m.Level < cfg.MaxLevel && c.chance(cfg.LevelUpChance) {
			m.Level++
		}
	case Abandoned:
		if m.AbandonmentCounter == 0 && c.chance(cfg.RedevelopChance) {
			m.State = Developed
		}
	}

	if m.State != prev || m.Level != prevLevel {
		c.log.Debug("zone development changed",
			"x", b.X, "y", b.Y, "from", prev, "to", m.State, "level", m.Level)
		c.markDirty(b)
	}
}
