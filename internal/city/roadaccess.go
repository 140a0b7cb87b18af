package city

// RoadAccessModule refreshes HasRoadAccess with a bounded search for the
// nearest road tile.
type RoadAccessModule struct{}

func (RoadAccessModule) update(c *City, b *Building) {
	t := c.FindTile(b.X, b.Y, c.search.hasRoad, c.cfg.Zones.MaxRoadSearchDistance)
	b.HasRoadAccess = t != nil
}
