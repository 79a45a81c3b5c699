package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"property-map-search/models"
)

const popularAreaCount = 3

// Aggregate derives MapStatistics from a filtered collection. It always
// recomputes from scratch.
func Aggregate(filtered []models.NormalizedProperty) models.MapStatistics {
	stats := models.MapStatistics{PopularAreas: []string{}}
	if len(filtered) == 0 {
		return stats
	}

	stats.TotalCount = len(filtered)
	stats.PriceRange.Min = filtered[0].Price
	stats.PriceRange.Max = filtered[0].Price

	var total float64
	for _, p := range filtered {
		total += p.Price
		if p.Price < stats.PriceRange.Min {
			stats.PriceRange.Min = p.Price
		}
		if p.Price > stats.PriceRange.Max {
			stats.PriceRange.Max = p.Price
		}
	}

	// Floating point summation can land a hair outside [min, max].
	avg := total / float64(len(filtered))
	if avg < stats.PriceRange.Min {
		avg = stats.PriceRange.Min
	}
	if avg > stats.PriceRange.Max {
		avg = stats.PriceRange.Max
	}
	stats.AveragePrice = avg

	stats.PopularAreas = popularAreas(filtered, popularAreaCount)
	return stats
}

// popularAreas ranks area keys by frequency; ties go to the key seen first.
func popularAreas(filtered []models.NormalizedProperty, limit int) []string {
	type areaCount struct {
		key   string
		count int
	}

	index := make(map[string]int)
	var areas []areaCount
	for _, p := range filtered {
		if p.AreaKey == "" {
			continue
		}
		i, ok := index[p.AreaKey]
		if !ok {
			i = len(areas)
			index[p.AreaKey] = i
			areas = append(areas, areaCount{key: p.AreaKey})
		}
		areas[i].count++
	}

	// areas is in first-seen order, so a stable sort keeps ties in it.
	sort.SliceStable(areas, func(i, j int) bool {
		return areas[i].count > areas[j].count
	})

	if len(areas) > limit {
		areas = areas[:limit]
	}
	keys := make([]string, 0, len(areas))
	for _, a := range areas {
		keys = append(keys, a.key)
	}
	return keys
}

// PrintStatistics writes a terminal summary of a snapshot.
func PrintStatistics(w io.Writer, snap models.Snapshot) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	s := snap.Stats

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🗺  MAP SEARCH SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Viewport\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if snap.Bounds == nil {
		fmt.Fprintf(w, "  No viewport yet (all locations)\n")
	} else {
		b := snap.Bounds
		fmt.Fprintf(w, "  Lat %.4f … %.4f | Lng %.4f … %.4f\n", b.South, b.North, b.West, b.East)
	}
	fmt.Fprintf(w, "  Price filter : %s – %s\n",
		formatPrice(snap.Settings.PriceRange[0]), formatPrice(snap.Settings.PriceRange[1]))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Properties in view : \033[1m%d\033[0m\n", s.TotalCount)
	if s.TotalCount > 0 {
		fmt.Fprintf(w, "  Average price      : \033[1;32m%s\033[0m\n", formatPrice(s.AveragePrice))
		fmt.Fprintf(w, "  Minimum price      : \033[1;32m%s\033[0m\n", formatPrice(s.PriceRange.Min))
		fmt.Fprintf(w, "  Maximum price      : \033[1;32m%s\033[0m\n", formatPrice(s.PriceRange.Max))
	} else {
		fmt.Fprintf(w, "  No properties match the current view\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Popular Areas\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(s.PopularAreas) == 0 {
		fmt.Fprintf(w, "  No area data\n")
	} else {
		for i, area := range s.PopularAreas {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %s\n", i+1, truncate(area, 48))
		}
	}

	if snap.Selection.PopupVisible() {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Selected: %s\n", snap.Selection.SelectedID)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// formatPrice renders an amount with thousands separators and no currency.
func formatPrice(f float64) string {
	whole := fmt.Sprintf("%.0f", f)
	if len(whole) <= 3 {
		return whole
	}
	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	return b.String()
}

// truncate shortens s to max runes so multi-byte names are never split.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
