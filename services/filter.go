package services

import (
	"property-map-search/models"
)

// Filter returns the properties inside bounds whose price lies in
// priceRange, edges inclusive. A nil bounds means no viewport has been
// established yet and only the price predicate applies.
//
// Input order is preserved, the input is never modified, and the result is
// always a freshly allocated slice.
func Filter(properties []models.NormalizedProperty, bounds *models.ViewportBounds, priceRange [2]float64) []models.NormalizedProperty {
	result := make([]models.NormalizedProperty, 0, len(properties))
	for _, p := range properties {
		if Matches(p, bounds, priceRange) {
			result = append(result, p)
		}
	}
	return result
}

// Matches is the predicate behind Filter.
func Matches(p models.NormalizedProperty, bounds *models.ViewportBounds, priceRange [2]float64) bool {
	if p.Price < priceRange[0] || p.Price > priceRange[1] {
		return false
	}
	return bounds == nil || bounds.Contains(p.Position)
}
