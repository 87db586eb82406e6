package series

import (
	"math"
	"sort"

	"github.com/lox/mpawatch/internal/models"
)

const TopSpeciesLimit = 10

// BuildSpeciesTrends produces one trend per scientific name, ordered by total
// count (largest first) then name. Observations without a name or a
// parseable date are ignored.
func BuildSpeciesTrends(obs []models.RawObservation) []models.SpeciesTrend {
	type group struct {
		common string
		agg    *Aggregator
		total  float64
	}

	groups := make(map[string]*group)
	for _, o := range obs {
		if o.ScientificName == "" {
			continue
		}
		g, ok := groups[o.ScientificName]
		if !ok {
			g = &group{agg: NewAggregator()}
			groups[o.ScientificName] = g
		}
		if g.common == "" && o.VernacularName != "" {
			g.common = o.VernacularName
		}
		if g.agg.Add(o.EventDate, o.Quantity()) {
			g.total += o.Quantity()
		}
	}

	trends := make([]models.SpeciesTrend, 0, len(groups))
	for name, g := range groups {
		if g.agg.Len() == 0 {
			continue
		}
		buckets := g.agg.Buckets()
		trends = append(trends, models.SpeciesTrend{
			ScientificName: name,
			CommonName:     g.common,
			Buckets:        buckets,
			TotalCount:     g.total,
			Trend:          EstimateTrend(buckets),
		})
	}

	sort.Slice(trends, func(i, j int) bool {
		if trends[i].TotalCount != trends[j].TotalCount {
			return trends[i].TotalCount > trends[j].TotalCount
		}
		return trends[i].ScientificName < trends[j].ScientificName
	})
	return trends
}

// TopSpecies returns up to limit species by total count.
func TopSpecies(trends []models.SpeciesTrend, limit int) []models.SpeciesCount {
	if limit > len(trends) {
		limit = len(trends)
	}
	top := make([]models.SpeciesCount, 0, limit)
	for _, t := range trends[:limit] {
		top = append(top, models.SpeciesCount{
			ScientificName: t.ScientificName,
			CommonName:     t.CommonName,
			Count:          t.TotalCount,
		})
	}
	return top
}

// ShannonDiversity computes H' = -Σ p ln p over species totals.
func ShannonDiversity(trends []models.SpeciesTrend) float64 {
	var total float64
	for _, t := range trends {
		if t.TotalCount > 0 {
			total += t.TotalCount
		}
	}
	if total == 0 {
		return 0
	}

	var h float64
	for _, t := range trends {
		if t.TotalCount <= 0 {
			continue
		}
		p := t.TotalCount / total
		h -= p * math.Log(p)
	}
	return h
}
