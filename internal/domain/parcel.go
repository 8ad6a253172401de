package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Embedding dimensions are fixed by the ETL pipeline that produces the
// vector batches. Both embeddings are present together or both absent.
const (
	SemanticDim   = 512
	StructuralDim = 256
)

type OwnershipType string

const (
	OwnershipPrivate     OwnershipType = "private"
	OwnershipMunicipal   OwnershipType = "municipal"
	OwnershipState       OwnershipType = "state"
	OwnershipCooperative OwnershipType = "cooperative"
)

type BuildStatus string

const (
	BuildStatusVacant            BuildStatus = "vacant"
	BuildStatusBuilt             BuildStatus = "built"
	BuildStatusUnderConstruction BuildStatus = "under_construction"
)

type SizeClass string

const (
	SizeClassSmall  SizeClass = "small"
	SizeClassMedium SizeClass = "medium"
	SizeClassLarge  SizeClass = "large"
	SizeClassXLarge SizeClass = "xlarge"
)

func KnownOwnershipTypes() []OwnershipType {
	return []OwnershipType{OwnershipPrivate, OwnershipMunicipal, OwnershipState, OwnershipCooperative}
}

func KnownBuildStatuses() []BuildStatus {
	return []BuildStatus{BuildStatusVacant, BuildStatusBuilt, BuildStatusUnderConstruction}
}

func KnownSizeClasses() []SizeClass {
	return []SizeClass{SizeClassSmall, SizeClassMedium, SizeClassLarge, SizeClassXLarge}
}

// Parcel is a single cadastral land unit, the primary retrievable entity.
// Ownership, build status and size class are single-valued category axes,
// so they are stored as tagged columns instead of graph hops; only genuinely
// multi-valued or hierarchical relations (location, zoning, POI proximity,
// adjacency) are real edges.
type Parcel struct {
	ID          string  `gorm:"primaryKey;column:id" json:"id"`
	AreaM2      float64 `gorm:"not null;column:area_m2" json:"area_m2"`
	CentroidLat float64 `gorm:"not null;column:centroid_lat" json:"centroid_lat"`
	CentroidLon float64 `gorm:"not null;column:centroid_lon" json:"centroid_lon"`

	Ownership   OwnershipType `gorm:"not null;column:ownership;index" json:"ownership"`
	BuildStatus BuildStatus   `gorm:"not null;column:build_status;index" json:"build_status"`
	SizeClass   SizeClass     `gorm:"not null;column:size_class;index" json:"size_class"`

	ZoneID     string `gorm:"column:zone_id;index" json:"zone_id"`
	CityID     string `gorm:"not null;column:city_id;index" json:"city_id"`
	DistrictID string `gorm:"not null;column:district_id;index" json:"district_id"`

	// Composite environment scores in [0,1], materialized by the ETL batch.
	Quietness     float64 `gorm:"column:quietness" json:"quietness"`
	Nature        float64 `gorm:"column:nature" json:"nature"`
	Accessibility float64 `gorm:"column:accessibility" json:"accessibility"`

	// HasEmbeddings reports whether the dual embeddings for this parcel were
	// produced in the current generation. The vectors themselves live in the
	// ANN backend.
	HasEmbeddings bool `gorm:"column:has_embeddings" json:"has_embeddings"`

	// Free-form cadastral attributes (road access class, utilities, etc.)
	// used for teaser labels and explanations.
	Attrs datatypes.JSON `gorm:"column:attrs" json:"attrs,omitempty"`

	Generation string    `gorm:"not null;column:generation;index" json:"generation"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Parcel) TableName() string {
	return "parcel"
}

// ZoningZone is a local zoning-plan zone. Residential reports whether the
// plan permits single-family residential development in the zone.
type ZoningZone struct {
	ID          string `gorm:"primaryKey;column:id" json:"id"`
	Code        string `gorm:"not null;column:code;index" json:"code"`
	Name        string `gorm:"column:name" json:"name"`
	Residential bool   `gorm:"not null;column:residential" json:"residential"`
}

func (ZoningZone) TableName() string {
	return "zoning_zone"
}
