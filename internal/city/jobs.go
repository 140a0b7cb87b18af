package city

import "github.com/google/uuid"

// JobsModule tracks the citizens employed by a commercial or industrial
// zone. It never recruits on its own; citizens find it by searching.
type JobsModule struct {
	Workers []uuid.UUID `json:"workers"`

	dev  *DevelopmentModule
	base int
}

func (m *JobsModule) MaxWorkers() int { return ipow(m.base, m.dev.Level) }

// AvailableJobs is zero unless the zone is developed.
func (m *JobsModule) AvailableJobs() int {
	if m.dev.State != Developed {
		return 0
	}
	return max(0, m.MaxWorkers()-len(m.Workers))
}

func (m *JobsModule) simulate(c *City) {
	if m.dev.State == Abandoned {
		m.layOffAll(c)
	}
}

func (m *JobsModule) hire(ct *Citizen) bool {
	if m.AvailableJobs() <= 0 {
		return false
	}
	m.Workers = append(m.Workers, ct.ID)
	return true
}

func (m *JobsModule) employs(id uuid.UUID) bool {
	for _, w := range m.Workers {
		if w == id {
			return true
		}
	}
	return false
}

// release drops a worker without touching the citizen.
func (m *JobsModule) release(id uuid.UUID) {
	for i, w := range m.Workers {
		if w == id {
			m.Workers = append(m.Workers[:i], m.Workers[i+1:]...)
			return
		}
	}
}

func (m *JobsModule) layOffAll(c *City) {
	for _, id := range m.Workers {
		if ct := c.citizens[id]; ct != nil {
			ct.Workplace = uuid.Nil
			ct.State = Unemployed
		}
	}
	m.Workers = nil
}
