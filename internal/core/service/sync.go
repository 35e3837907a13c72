package service

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

// Fingerprint digests a slot list into a change marker. The list is sorted
// by label before hashing, so any two inventories that are equal as a
// multiset produce the same digest regardless of input order. Equal
// fingerprints mean no config push is needed.
func Fingerprint(slots []domain.SlotConfig) string {
	sorted := make([]domain.SlotConfig, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	data, err := json.Marshal(sorted)
	if err != nil {
		// SlotConfig contains only strings and ints; Marshal cannot fail.
		panic(err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
