package domain

// Metrics holds the raw aggregates returned by the query service plus the
// ratios derived from them.
type Metrics struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Conversions float64 `json:"conversions"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`

	// network-reported secondary counters
	MImp    float64 `json:"m_imp"`
	MClicks float64 `json:"m_clicks"`
	MConv   float64 `json:"m_conv"`

	Profit float64 `json:"profit"`

	// derived ratios, always recomputed locally via guarded division
	CTR  float64 `json:"ctr"`
	CVR  float64 `json:"cvr"`
	ROI  float64 `json:"roi"`
	CPA  float64 `json:"cpa"`
	RPA  float64 `json:"rpa"`
	EPC  float64 `json:"epc"`
	EPV  float64 `json:"epv"`
	MEPC float64 `json:"m_epc"`
	MEPV float64 `json:"m_epv"`
	MCPC float64 `json:"m_cpc"`
	MCPV float64 `json:"m_cpv"`
}

// SafeDiv divides num by den, substituting 1 for a zero denominator so
// ratio metrics stay finite.
func SafeDiv(num, den float64) float64 {
	if den == 0 {
		den = 1
	}
	return num / den
}

// ROIOf is the one ratio with a sign-aware guard: spend of exactly zero
// yields 0 instead of dividing by a forced 1.
func ROIOf(revenue, spend float64) float64 {
	if spend == 0 {
		return 0
	}
	return (revenue - spend) / spend
}

// Recompute rebuilds every derived ratio from the raw aggregates, replacing
// whatever the wire payload carried. Imported and locally derived values
// must never disagree.
func (m *Metrics) Recompute() {
	m.Profit = m.Revenue - m.Spend
	m.CTR = SafeDiv(m.Clicks, m.Impressions)
	m.CVR = SafeDiv(m.Conversions, m.Clicks)
	m.ROI = ROIOf(m.Revenue, m.Spend)
	m.CPA = SafeDiv(m.Spend, m.Conversions)
	m.RPA = SafeDiv(m.Revenue, m.Conversions)
	m.EPC = SafeDiv(m.Revenue, m.Clicks)
	m.EPV = SafeDiv(m.Revenue, m.Impressions)
	m.MEPC = SafeDiv(m.Revenue, m.MClicks)
	m.MEPV = SafeDiv(m.Revenue, m.MImp)
	m.MCPC = SafeDiv(m.Spend, m.MClicks)
	m.MCPV = SafeDiv(m.Spend, m.MImp)
}

// Row is the flattened table row handed to the rendering layer, built
// either from a flat per-level query result or from a hierarchy node.
type Row struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Level         int               `json:"level"`
	DimensionType Dimension         `json:"dimensionType"`
	HasChild      bool              `json:"hasChild"`
	FilterPath    []DimensionFilter `json:"filterPath,omitempty"`
	LanderURL     string            `json:"landerUrl,omitempty"`

	Metrics
}

// DailyMetric is one bucket of the per-row daily breakdown time series.
type DailyMetric struct {
	Date        string  `json:"date"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Conversions float64 `json:"conversions"`
	Spend       float64 `json:"spend"`
	Revenue     float64 `json:"revenue"`
	MImp        float64 `json:"m_imp"`
	MClicks     float64 `json:"m_clicks"`
	MConv       float64 `json:"m_conv"`
}
