package domain

import (
	"fmt"
	"math"
)

// FormatTimestamp renders seconds as m:ss.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// NewRegionInfo attaches display labels to a region.
func NewRegionInfo(region Region) *RegionInfo {
	return &RegionInfo{
		Region:     region,
		StartLabel: FormatTimestamp(region.Start),
		EndLabel:   FormatTimestamp(region.End),
	}
}
