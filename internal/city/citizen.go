package city

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type CitizenState string

const (
	School     CitizenState = "school"
	Unemployed CitizenState = "unemployed"
	Employed   CitizenState = "employed"
	Retired    CitizenState = "retired"
)

var (
	firstNames = []string{"Ada", "Bram", "Cleo", "Dev", "Edie", "Finn", "Gus", "Hana", "Ines", "Jude", "Kai", "Lena"}
	lastNames  = []string{"Abbott", "Baker", "Chen", "Diaz", "Evans", "Fox", "Gray", "Hart", "Ito", "Jones", "Khan", "Lund"}
)

// Citizen lives in the residential zone Residence and optionally works at
// Workplace. Both are building ids; uuid.Nil means no workplace.
type Citizen struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Age       int          `json:"age"`
	State     CitizenState `json:"state"`
	Residence uuid.UUID    `json:"residence"`
	Workplace uuid.UUID    `json:"workplace"`
}

func (c *City) newCitizen(home *Building) *Citizen {
	ct := &Citizen{
		ID:        c.newID(),
		Name:      firstNames[c.rng.Intn(len(firstNames))] + " " + lastNames[c.rng.Intn(len(lastNames))],
		Age:       1 + c.rng.Intn(100),
		Residence: home.ID,
	}
	ct.State = ct.baseState(c)
	c.citizens[ct.ID] = ct
	return ct
}

// baseState derives the state from age alone; working-age citizens start
// out unemployed.
func (ct *Citizen) baseState(c *City) CitizenState {
	switch {
	case ct.Age < c.cfg.Citizens.MinWorkingAge:
		return School
	case ct.Age >= c.cfg.Citizens.RetirementAge:
		return Retired
	}
	return Unemployed
}

func (ct *Citizen) simulate(c *City) {
	ct.State = ct.baseState(c)
	if ct.State != Unemployed {
		return
	}
	if ct.Workplace != uuid.Nil && c.workplaceOf(ct) == nil {
		ct.Workplace = uuid.Nil
	}
	if ct.Workplace == uuid.Nil {
		ct.findJob(c)
	}
	if ct.Workplace != uuid.Nil {
		ct.State = Employed
	}
}

func (ct *Citizen) findJob(c *City) {
	home := c.buildings[ct.Residence]
	if home == nil {
		return
	}
	t := c.FindTile(home.X, home.Y, c.search.hiring, c.cfg.Citizens.MaxJobSearchDistance)
	if t == nil || t.Building == nil || t.Building.Zone == nil || t.Building.Zone.Jobs == nil {
		return
	}
	if t.Building.Zone.Jobs.hire(ct) {
		ct.Workplace = t.Building.ID
		c.markDirty(t.Building)
	}
}

// workplaceOf resolves the citizen's workplace, or nil when the building is
// gone or no longer lists the citizen.
func (c *City) workplaceOf(ct *Citizen) *Building {
	if ct.Workplace == uuid.Nil {
		return nil
	}
	b := c.buildings[ct.Workplace]
	if b == nil || b.Zone == nil || b.Zone.Jobs == nil || !b.Zone.Jobs.employs(ct.ID) {
		return nil
	}
	return b
}

func (ct *Citizen) Describe(c *City) string {
	var s strings.Builder
	fmt.Fprintf(&s, "  citizen %s (%s) age=%d state=%s\n", ct.Name, ct.ID, ct.Age, ct.State)
	if w := c.workplaceOf(ct); w != nil {
		fmt.Fprintf(&s, "    works at %s (%d,%d)\n", w.Name, w.X, w.Y)
	}
	return s.String()
}
