package services

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
	"github.com/paulmach/orb"

	"property-map-search/models"
	"property-map-search/utils"
)

var (
	// numberRegexp captures the first numeric value once separators are gone
	numberRegexp = regexp.MustCompile(`(?:\d+(?:\.\d+)?|\.\d+)(?:e[+-]?\d+)?`)
	// magnitudeRegexp captures a trailing "million"/"billion" word
	magnitudeRegexp = regexp.MustCompile(`(million|billion)[\s.]*$`)
)

// NormalizePrice converts a raw price encoding into a finite, non-negative
// amount. Anything that cannot be read as a price becomes 0.
//
//	"₦45,000,000"  → 45000000
//	"2.5 million"  → 2500000
//	"$1.2 Billion" → 1200000000
//	-10, NaN, "ask" → 0
func NormalizePrice(raw any) float64 {
	price, _ := normalizePrice(raw)
	return price
}

// normalizePrice also reports whether raw was readable, so callers can warn.
func normalizePrice(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case string:
		return parsePriceString(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finiteNonNegative(f)
	case float64:
		return finiteNonNegative(v)
	case float32:
		return finiteNonNegative(float64(v))
	case int:
		return finiteNonNegative(float64(v))
	case int8:
		return finiteNonNegative(float64(v))
	case int16:
		return finiteNonNegative(float64(v))
	case int32:
		return finiteNonNegative(float64(v))
	case int64:
		return finiteNonNegative(float64(v))
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func parsePriceString(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))

	multiplier := 1.0
	if m := magnitudeRegexp.FindStringSubmatchIndex(s); m != nil {
		switch s[m[2]:m[3]] {
		case "million":
			multiplier = 1e6
		case "billion":
			multiplier = 1e9
		}
		s = s[:m[0]]
	}

	// Remove thousands separators; currency symbols and codes are skipped
	// by only matching digits.
	s = strings.ReplaceAll(s, ",", "")
	loc := numberRegexp.FindStringIndex(s)
	if loc == nil {
		return 0, false
	}
	match := s[loc[0]:loc[1]]

	// "-500", "-$500" and "₦ -500" are negative amounts, like the number -500
	if negativePrefix(s[:loc[0]]) {
		return 0, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return finiteNonNegative(value * multiplier)
}

func negativePrefix(prefix string) bool {
	p := strings.Join(strings.Fields(prefix), "")
	for _, minus := range []string{"-", "\u2212"} {
		if strings.HasPrefix(p, minus) || strings.HasSuffix(p, minus) {
			return true
		}
	}
	return false
}

func finiteNonNegative(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// Normalizer turns a raw property snapshot into NormalizedProperty values.
type Normalizer struct {
	logger          *utils.Logger
	defaultPosition orb.Point
	memo            *gocache.Cache
}

// NewNormalizer creates a Normalizer. Properties without usable coordinates
// are placed at defaultPosition.
func NewNormalizer(logger *utils.Logger, defaultPosition orb.Point) *Normalizer {
	return &Normalizer{
		logger:          logger,
		defaultPosition: defaultPosition,
		memo:            gocache.New(10*time.Minute, 30*time.Minute),
	}
}

// Normalize processes a snapshot. Records with an empty or repeated ID are
// dropped so IDs stay unique; everything else is kept, degraded if needed.
func (n *Normalizer) Normalize(records []models.PropertyRecord) []models.NormalizedProperty {
	seen := make(map[string]struct{}, len(records))
	result := make([]models.NormalizedProperty, 0, len(records))

	for _, r := range records {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			n.logger.Warn("[normalizer] Dropping property with empty ID: %s", r.Title)
			continue
		}
		if _, dup := seen[id]; dup {
			n.logger.Debug("[normalizer] Duplicate property ID skipped: %s", id)
			continue
		}
		seen[id] = struct{}{}
		r.ID = id

		result = append(result, models.NormalizedProperty{
			PropertyRecord: r,
			Price:          n.price(r),
			Position:       n.position(r),
			AreaKey:        AreaKey(r),
		})
	}

	if dropped := len(records) - len(result); dropped > 0 {
		n.logger.Info("[normalizer] Normalized %d → %d properties (dropped %d)",
			len(records), len(result), dropped)
	}
	return result
}

func (n *Normalizer) price(r models.PropertyRecord) float64 {
	raw, isString := r.RawPrice.(string)
	if isString {
		if cached, found := n.memo.Get(raw); found {
			return cached.(float64)
		}
	}

	price, ok := normalizePrice(r.RawPrice)
	if !ok && !blankPrice(r.RawPrice) {
		n.logger.Warn("[normalizer] Unreadable price %v for property %s, using 0", r.RawPrice, r.ID)
	}

	if isString {
		n.memo.Set(raw, price, gocache.DefaultExpiration)
	}
	return price
}

func blankPrice(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

func (n *Normalizer) position(r models.PropertyRecord) orb.Point {
	c := r.Coordinates
	if c == nil {
		n.logger.Debug("[normalizer] Property %s has no coordinates, using default position", r.ID)
		return n.defaultPosition
	}
	if !validCoordinate(c.Lat, -90, 90) || !validCoordinate(c.Lng, -180, 180) {
		n.logger.Warn("[normalizer] Property %s has invalid coordinates (%v, %v), using default position",
			r.ID, c.Lat, c.Lng)
		return n.defaultPosition
	}
	return orb.Point{c.Lng, c.Lat}
}

func validCoordinate(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// AreaKey derives the popular-areas grouping label: the city, else the first
// comma-separated segment of the address, else "".
func AreaKey(r models.PropertyRecord) string {
	if city := normaliseText(r.City); city != "" {
		return city
	}
	first, _, _ := strings.Cut(r.Address, ",")
	return normaliseText(first)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
