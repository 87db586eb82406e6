package models

import "time"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Region struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Center   LatLng   `json:"center"`
	RadiusKm float64  `json:"radiusKm"`
	Boundary []LatLng `json:"boundary,omitempty"`
}

// HasBoundary reports whether the region carries a polygon usable for
// containment tests (at least a triangle).
func (r Region) HasBoundary() bool {
	return len(r.Boundary) >= 3
}

type Measurement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// RawObservation is one upstream occurrence or tracking fix. Count fields are
// pointers because upstream frequently omits them.
type RawObservation struct {
	ID               string        `json:"id,omitempty"`
	ScientificName   string        `json:"scientificName"`
	VernacularName   string        `json:"vernacularName,omitempty"`
	Genus            string        `json:"genus,omitempty"`
	Family           string        `json:"family,omitempty"`
	EventDate        string        `json:"eventDate"`
	Timestamp        time.Time     `json:"timestamp,omitzero"`
	Lat              float64       `json:"lat"`
	Lng              float64       `json:"lng"`
	HasCoordinates   bool          `json:"-"`
	IndividualCount  *float64      `json:"individualCount,omitempty"`
	OrganismQuantity *float64      `json:"organismQuantity,omitempty"`
	IndividualID     string        `json:"individualId,omitempty"`
	StudyID          string        `json:"studyId,omitempty"`
	DatasetID        string        `json:"datasetId,omitempty"`
	Institution      string        `json:"institution,omitempty"`
	BasisOfRecord    string        `json:"basisOfRecord,omitempty"`
	Measurements     []Measurement `json:"measurements,omitempty"`
}

func (o RawObservation) Position() LatLng {
	return LatLng{Lat: o.Lat, Lng: o.Lng}
}

// Quantity returns individualCount, falling back to organismQuantity, then 1.
func (o RawObservation) Quantity() float64 {
	if o.IndividualCount != nil {
		return *o.IndividualCount
	}
	if o.OrganismQuantity != nil {
		return *o.OrganismQuantity
	}
	return 1
}

type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

type MonthlyBucket struct {
	Month       string  `json:"date"`
	Value       float64 `json:"count"`
	RecordCount int     `json:"recordCount"`
	Quality     Quality `json:"quality"`
}

type TrendLabel string

const (
	TrendIncreasing       TrendLabel = "increasing"
	TrendStable           TrendLabel = "stable"
	TrendDecreasing       TrendLabel = "decreasing"
	TrendInsufficientData TrendLabel = "insufficient_data"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Trend struct {
	Label         TrendLabel `json:"trend"`
	ChangePercent float64    `json:"changePercent"`
	Slope         float64    `json:"slope"`
	Confidence    Confidence `json:"confidence"`
}

type SpeciesTrend struct {
	ScientificName string          `json:"scientificName"`
	CommonName     string          `json:"commonName"`
	Buckets        []MonthlyBucket `json:"data"`
	TotalCount     float64         `json:"totalCount"`
	Trend
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type Anomaly struct {
	Index     int      `json:"index"`
	Date      string   `json:"date,omitempty"`
	Value     float64  `json:"value"`
	ZScore    float64  `json:"zScore"`
	Severity  Severity `json:"severity"`
	Direction string   `json:"direction"` // "spike" or "drop"
}

type ThresholdStatus string

const (
	StatusNormal   ThresholdStatus = "normal"
	StatusWarning  ThresholdStatus = "warning"
	StatusCritical ThresholdStatus = "critical"
)

type EnvironmentalParameter struct {
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	CurrentValue  float64         `json:"currentValue"`
	HistoricalAvg float64         `json:"historicalAvg"`
	Min           float64         `json:"min"`
	Max           float64         `json:"max"`
	Trend         Trend           `json:"trend"`
	DataPoints    []MonthlyBucket `json:"dataPoints"`
	Anomalies     []Anomaly       `json:"anomalies,omitempty"`
	Status        ThresholdStatus `json:"status,omitempty"`
}

type TrackPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	InRegion  bool      `json:"inRegion"`
}

type TrackingPath struct {
	IndividualID           string       `json:"individualId"`
	ScientificName         string       `json:"scientificName,omitempty"`
	StudyID                string       `json:"studyId,omitempty"`
	Points                 []TrackPoint `json:"points"`
	ResidencyTimeHours     float64      `json:"residencyTimeHours"`
	PercentTimeInRegion    float64      `json:"percentTimeInRegion"`
	BoundaryCrossings      int          `json:"boundaryCrossings"`
	FirstSighting          time.Time    `json:"firstSighting"`
	LastSighting           time.Time    `json:"lastSighting"`
	TotalDistanceKm        float64      `json:"totalDistanceKm"`
	LastBoundaryDistanceKm float64      `json:"lastBoundaryDistanceKm,omitempty"`
}

type HeatmapCell struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

type DataQuality struct {
	TotalRecords    int       `json:"totalRecords"`
	RecordsInRegion int       `json:"recordsInRegion"`
	DroppedRecords  int       `json:"droppedRecords"`
	PagesAttempted  int       `json:"pagesAttempted"`
	Complete        bool      `json:"complete"`
	StartDate       string    `json:"startDate,omitempty"`
	EndDate         string    `json:"endDate,omitempty"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

type SpeciesCount struct {
	ScientificName string  `json:"scientificName"`
	CommonName     string  `json:"commonName"`
	Count          float64 `json:"count"`
}

type AbundanceSummary struct {
	RegionID         string          `json:"regionId"`
	SpeciesTrends    []SpeciesTrend  `json:"speciesTrends"`
	MonthlyTotals    []MonthlyBucket `json:"monthlyTotals"`
	Anomalies        []Anomaly       `json:"anomalies,omitempty"`
	UniqueSpecies    int             `json:"uniqueSpecies"`
	ShannonDiversity float64         `json:"shannonDiversity"`
	TopSpecies       []SpeciesCount  `json:"topSpecies"`
	Heatmap          []HeatmapCell   `json:"heatmap,omitempty"`
	DataQuality      DataQuality     `json:"dataQuality"`
	CachedAt         time.Time       `json:"cachedAt"`
	ExpiresAt        time.Time       `json:"expiresAt"`
}

type EnvironmentalSummary struct {
	RegionID    string                   `json:"regionId"`
	Parameters  []EnvironmentalParameter `json:"parameters"`
	DataQuality DataQuality              `json:"dataQuality"`
	CachedAt    time.Time                `json:"cachedAt"`
	ExpiresAt   time.Time                `json:"expiresAt"`
}

type Study struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MainLat     float64 `json:"mainLat"`
	MainLng     float64 `json:"mainLng"`
}

type TrackingSummary struct {
	RegionID               string         `json:"regionId"`
	Paths                  []TrackingPath `json:"paths"`
	Studies                []Study        `json:"studies"`
	IndividualsTracked     int            `json:"individualsTracked"`
	AvgPercentTimeInRegion float64        `json:"avgPercentTimeInRegion"`
	TotalBoundaryCrossings int            `json:"totalBoundaryCrossings"`
	SpeciesCounts          map[string]int `json:"speciesCounts"`
	Heatmap                []HeatmapCell  `json:"heatmap,omitempty"`
	DataQuality            DataQuality    `json:"dataQuality"`
	CachedAt               time.Time      `json:"cachedAt"`
	ExpiresAt              time.Time      `json:"expiresAt"`
}

type SubScore struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Available bool    `json:"available"`
}

type CompositeHealthScore struct {
	RegionID         string     `json:"regionId,omitempty"`
	Score            float64    `json:"score"`
	SubScores        []SubScore `json:"subScores"`
	Confidence       Confidence `json:"confidence"`
	AvailableSources int        `json:"availableSources"`
	TotalSources     int        `json:"totalSources"`
	ComputedAt       time.Time  `json:"computedAt"`
}
