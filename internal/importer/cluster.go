package importer

import (
	"sort"
	"time"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// ClusterPrecision is the geohash length cluster documents are keyed by.
const ClusterPrecision = 6

// ClusterRecords groups records by the first precision characters of their
// geohash. Clusters come out sorted by geohash; inside a cluster records are
// sorted by geohash and keep input order on ties.
func ClusterRecords(records []domain.Record, precision int, importedAt time.Time) []domain.Cluster {
	if precision <= 0 {
		precision = ClusterPrecision
	}

	byHash := make(map[string]*domain.Cluster)
	for _, rec := range records {
		key := rec.Geohash
		if len(key) > precision {
			key = key[:precision]
		}
		c, ok := byHash[key]
		if !ok {
			c = &domain.Cluster{Geohash: key, ImportedAt: importedAt}
			byHash[key] = c
		}
		c.Records = append(c.Records, rec)
	}

	out := make([]domain.Cluster, 0, len(byHash))
	for _, c := range byHash {
		sort.SliceStable(c.Records, func(i, j int) bool { return c.Records[i].Geohash < c.Records[j].Geohash })
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Geohash < out[j].Geohash })
	return out
}
