package domain

type POIType string

const (
	POISchool  POIType = "school"
	POIBusStop POIType = "bus_stop"
	POIShop    POIType = "shop"
	POIForest  POIType = "forest"
	POIWater   POIType = "water"
	POIRoad    POIType = "road"
)

func KnownPOITypes() []POIType {
	return []POIType{POISchool, POIBusStop, POIShop, POIForest, POIWater, POIRoad}
}

// POIThresholds are the per-type materialization cutoffs in meters. The ETL
// batch never emits a ProximityEdge beyond its type's threshold, so a
// missing edge means "farther than the threshold" and scores zero.
var POIThresholds = map[POIType]float64{
	POISchool:  1500,
	POIBusStop: 800,
	POIShop:    1200,
	POIForest:  2000,
	POIWater:   2500,
	POIRoad:    1000,
}

type POI struct {
	ID   string  `json:"id"`
	Type POIType `json:"type"`
	Name string  `json:"name"`
}

// ProximityEdge links a parcel to a POI within the type threshold.
type ProximityEdge struct {
	ParcelID  string  `json:"parcel_id"`
	POIID     string  `json:"poi_id"`
	POIType   POIType `json:"poi_type"`
	DistanceM float64 `json:"distance_m"`
}

// AdjacencyEdge is undirected and unique per unordered parcel pair; the
// index stores it with ParcelA < ParcelB.
type AdjacencyEdge struct {
	ParcelA       string  `json:"parcel_a"`
	ParcelB       string  `json:"parcel_b"`
	SharedBorderM float64 `json:"shared_border_m"`
}
