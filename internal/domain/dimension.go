package domain

import (
	"fmt"
	"time"
)

// Dimension is a categorical grouping axis for campaign metrics.
type Dimension string

const (
	DimensionPlatform    Dimension = "platform"
	DimensionAdvertiser  Dimension = "advertiser"
	DimensionOffer       Dimension = "offer"
	DimensionLander      Dimension = "lander"
	DimensionCampaign    Dimension = "campaign_name"
	DimensionAdset       Dimension = "sub_campaign_name"
	DimensionCreative    Dimension = "creative_name"
	DimensionDate        Dimension = "date"
)

// display labels used by the dashboard dimension picker
var dimensionLabels = map[Dimension]string{
	DimensionPlatform:   "Media",
	DimensionAdvertiser: "Advertiser",
	DimensionOffer:      "Offer",
	DimensionLander:     "Lander",
	DimensionCampaign:   "Campaign",
	DimensionAdset:      "Adset",
	DimensionCreative:   "Ads",
	DimensionDate:       "Date",
}

// AllDimensions lists every dimension in picker order.
func AllDimensions() []Dimension {
	return []Dimension{
		DimensionPlatform,
		DimensionAdvertiser,
		DimensionOffer,
		DimensionLander,
		DimensionCampaign,
		DimensionAdset,
		DimensionCreative,
		DimensionDate,
	}
}

func (d Dimension) Label() string {
	if label, ok := dimensionLabels[d]; ok {
		return label
	}
	return string(d)
}

func (d Dimension) IsValid() bool {
	_, ok := dimensionLabels[d]
	return ok
}

// DimensionFilter constrains one dimension to one value. An ordered
// sequence of filters forms a drill path: the filter at position i always
// constrains the dimension at position i of the active dimension list.
type DimensionFilter struct {
	Dimension Dimension `json:"dimension"`
	Value     string    `json:"value"`
}

// NextDimension returns the dimension the next query should group by,
// given the active dimension list and the filters drilled so far.
// ok is false at the terminal drill level.
func NextDimension(dims []Dimension, filters []DimensionFilter) (Dimension, bool) {
	if len(filters) >= len(dims) {
		return "", false
	}
	return dims[len(filters)], true
}

// DateRange is an inclusive calendar date range. Wire serialization uses
// the caller's local calendar date, never a UTC-shifted one, to match the
// analytics store's local-date bucketing.
type DateRange struct {
	Start time.Time
	End   time.Time
}

const dateLayout = "2006-01-02"

func (r DateRange) StartString() string { return r.Start.Format(dateLayout) }
func (r DateRange) EndString() string   { return r.End.Format(dateLayout) }

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.StartString(), r.EndString())
}
