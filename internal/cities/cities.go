package cities

// City is one entry in the static registry: a stable lowercase slug plus the
// coordinates used to build provider requests.
type City struct {
	ID  string
	Lat float64
	Lon float64
}

// registry lists the monitored cities in canonical order. Bulk operations
// iterate this slice, so response ordering is deterministic across calls.
var registry = []City{
	{ID: "tashkent", Lat: 41.2995, Lon: 69.2401},
	{ID: "samarkand", Lat: 39.6542, Lon: 66.9597},
	{ID: "bukhara", Lat: 39.7681, Lon: 64.4556},
	{ID: "namangan", Lat: 40.9983, Lon: 71.6726},
	{ID: "andijan", Lat: 40.7821, Lon: 72.3442},
	{ID: "fergana", Lat: 40.3864, Lon: 71.7864},
	{ID: "nukus", Lat: 42.4619, Lon: 59.6166},
	{ID: "urgench", Lat: 41.5500, Lon: 60.6333},
	{ID: "kokand", Lat: 40.5286, Lon: 70.9425},
	{ID: "navoi", Lat: 40.0844, Lon: 65.3792},
	{ID: "jizzakh", Lat: 40.1158, Lon: 67.8422},
	{ID: "termez", Lat: 37.2242, Lon: 67.2783},
	{ID: "qarshi", Lat: 38.8600, Lon: 65.8000},
	{ID: "margilan", Lat: 40.4703, Lon: 71.7144},
}

var byID = buildIndex()

func buildIndex() map[string]City {
	m := make(map[string]City, len(registry))
	for _, c := range registry {
		m[c.ID] = c
	}
	return m
}

// All returns the registry in canonical order. Callers must not modify the
// returned slice.
func All() []City {
	return registry
}

// Lookup returns the city for id. ok is false when id is not registered.
func Lookup(id string) (City, bool) {
	c, ok := byID[id]
	return c, ok
}

// Count returns the number of registered cities.
func Count() int {
	return len(registry)
}
