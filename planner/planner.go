package planner

import (
	"fmt"
	"time"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/registry"
)

// ErrAOITooLarge is returned when the area exceeds the hard limit
type ErrAOITooLarge struct {
	AreaKm2  float64
	LimitKm2 float64
}

func (e *ErrAOITooLarge) Error() string {
	return fmt.Sprintf("AOI too large (%.0f km²). Maximum allowed is %.0f km². Try a smaller area like a city neighborhood or specific location.",
		e.AreaKm2, e.LimitKm2)
}

// SizeEstimate is the estimated uncompressed size of a grid download
type SizeEstimate struct {
	WidthPx       int     `json:"width_pixels"`
	HeightPx      int     `json:"height_pixels"`
	TotalPx       int     `json:"total_pixels"`
	Bands         int     `json:"bands"`
	BytesPerPixel int     `json:"bytes_per_pixel"`
	Bytes         int64   `json:"size_bytes"`
	MB            float64 `json:"size_mb"`
	Human         string  `json:"size_str"`
	Resolution    float64 `json:"resolution_deg"`
}

// EstimateSize computes the size of a download of the bounding box at the given resolution
func EstimateSize(entry registry.Entry, a aoi.AOI, resolution float64) SizeEstimate {
	s := SizeEstimate{
		WidthPx:       int((a.East() - a.West()) / resolution),
		HeightPx:      int((a.North() - a.South()) / resolution),
		Bands:         entry.BandCount(),
		BytesPerPixel: entry.PixelBytes(),
		Resolution:    resolution,
	}
	s.TotalPx = s.WidthPx * s.HeightPx
	s.Bytes = int64(s.TotalPx) * int64(s.Bands) * int64(s.BytesPerPixel)
	s.MB = float64(s.Bytes) / (1024 * 1024)
	s.Human = HumanSize(s.Bytes)
	return s
}

// HumanSize formats a number of bytes as KB, MB or GB
func HumanSize(bytes int64) string {
	mb := float64(bytes) / (1024 * 1024)
	switch {
	case mb < 1:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case mb < 1024:
		return fmt.Sprintf("%.1f MB", mb)
	default:
		return fmt.Sprintf("%.1f GB", mb/1024)
	}
}

// Suggestion is a remediation proposed to the caller when no data is found
type Suggestion struct {
	Action             string `json:"action"`
	SuggestedTimeRange string `json:"suggested_time_range"`
	SuggestedDays      int    `json:"suggested_days"`
	Message            string `json:"message"`
}

// ActionRetryExpanded is the action of the suggestion to retry with a wider time window
const ActionRetryExpanded = "retry_with_expanded_time_range"

// FetchPlan is the plan of a single request. It is consumed by the dispatcher.
type FetchPlan struct {
	Collection           string
	AreaKm2              float64
	TimeRange            TimeRange
	UsedDefaultTimeRange bool
	SearchLimit          int
	ResolutionScale      int           // Grid and multidim only
	Resolution           float64       // Grid and multidim only
	Size                 *SizeEstimate // Grid and multidim only
	MaxCloudCover        *int          // Only for optical collections with cloud metadata
	Warnings             []string

	defaultDays int
	retryDays   int
	now         time.Time
	footprints  bool
}

// NoDataSuggestion returns the suggestion to widen the time window, only if the default window was used
func (p *FetchPlan) NoDataSuggestion() *Suggestion {
	if !p.UsedDefaultTimeRange || p.footprints {
		return nil
	}
	tr := DefaultTimeRange(p.now, p.retryDays).String()
	return &Suggestion{
		Action:             ActionRetryExpanded,
		SuggestedTimeRange: tr,
		SuggestedDays:      p.retryDays,
		Message: fmt.Sprintf("No data found for %s in the last %d days. Try expanding the time range to %d days: %s",
			p.Collection, p.defaultDays, p.retryDays, tr),
	}
}

// NoDataMessage returns the message reported to the caller when no data is found
func (p *FetchPlan) NoDataMessage() string {
	if p.footprints {
		return fmt.Sprintf("No %s features found in this area. Try a larger or different area.", p.Collection)
	}
	if s := p.NoDataSuggestion(); s != nil {
		return fmt.Sprintf("No %s data found in the last %d days for this area. Suggestion: expand time_range to '%s' (last %d days) and retry.",
			p.Collection, p.defaultDays, s.SuggestedTimeRange, s.SuggestedDays)
	}
	return fmt.Sprintf("No %s data found for time range '%s' in this area. Try a different time range or expand your search window.",
		p.Collection, p.TimeRange)
}

// Planner computes the fetch plans. It never performs any I/O.
type Planner struct {
	Policy Policy
	Now    func() time.Time // Default: time.Now
}

// New returns a planner with the default policy
func New() *Planner {
	return &Planner{Policy: DefaultPolicy()}
}

func (p *Planner) policy() Policy {
	if len(p.Policy.LimitSteps) == 0 || len(p.Policy.ScaleSteps) == 0 {
		return DefaultPolicy()
	}
	return p.Policy
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Plan checks the area, resolves the time range, the search limit, the resolution and the size of the download.
// timeRange is optional: the last Policy.DefaultDays are used if nil.
func (p *Planner) Plan(entry registry.Entry, a aoi.AOI, timeRange *string, maxCloudCover int) (*FetchPlan, error) {
	if a.IsZero() {
		return nil, &aoi.ErrInvalidAOI{Reason: "missing AOI"}
	}
	pol := p.policy()
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("Plan.%w", err)
	}
	area := a.AreaKm2()
	if area > pol.RejectKm2 {
		return nil, &ErrAOITooLarge{AreaKm2: area, LimitKm2: pol.RejectKm2}
	}

	plan := &FetchPlan{
		Collection:  entry.ID,
		AreaKm2:     area,
		SearchLimit: pol.SearchLimit(area),
		defaultDays: pol.DefaultDays,
		retryDays:   pol.DefaultDays + pol.RetryExtraDays,
		now:         p.now(),
		footprints:  entry.Shape == common.ShapeVector,
	}
	if area > pol.WarnKm2 {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("Large AOI (%.0f km²). Download may take several minutes. Consider using a smaller area for faster results.", area))
	}

	if timeRange == nil {
		plan.TimeRange = DefaultTimeRange(plan.now, pol.DefaultDays)
		plan.UsedDefaultTimeRange = true
		// Footprints are not time-filtered
		if !plan.footprints {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("No time range specified. Using last %d days: %s. Specify time_range like '2024-06-01/2024-06-30' for specific dates.",
				pol.DefaultDays, plan.TimeRange))
		}
	} else {
		tr, err := ParseTimeRange(*timeRange)
		if err != nil {
			return nil, err
		}
		plan.TimeRange = tr
	}

	if entry.Shape != common.ShapeVector {
		plan.ResolutionScale = pol.ResolutionScale(area)
		plan.Resolution = entry.NativeResolution * float64(plan.ResolutionScale)
		if plan.Resolution > 0 {
			size := EstimateSize(entry, a, plan.Resolution)
			plan.Size = &size
		}
	}

	if entry.Category == common.CategoryOptical && entry.CloudCover {
		cc := maxCloudCover
		plan.MaxCloudCover = &cc
	}
	return plan, nil
}
