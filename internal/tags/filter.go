package tags

import (
	"sort"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// Entry pairs an instance with its catalog variant.
type Entry struct {
	Instance *models.Instance `json:"instance"`
	Variant  *models.Variant  `json:"variant"`
}

// FilterByOwnership returns the instances in the bucket for status that also
// join to a variant, ordered by pokedex number and then instance id. Unknown
// statuses return an empty slice.
func FilterByOwnership(lookup map[string]*models.Variant, data map[string]*models.Instance, status string, buckets *models.TagBuckets) []Entry {
	out := []Entry{}
	if !models.IsKnownStatus(status) {
		return out
	}
	bucket := buckets.Bucket(status)
	if len(bucket) == 0 {
		return out
	}

	for id := range bucket {
		inst, ok := data[id]
		if !ok {
			continue
		}
		variant, ok := lookup[inst.VariantKey()]
		if !ok {
			continue
		}
		out = append(out, Entry{Instance: inst, Variant: variant})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Variant.PokedexNumber != b.Variant.PokedexNumber {
			return a.Variant.PokedexNumber < b.Variant.PokedexNumber
		}
		return a.Instance.InstanceID < b.Instance.InstanceID
	})
	return out
}
