package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Dataset holds the raw timestamps of one campaign: the spot broadcast times
// and the signup times, both in attribution.Layout.
type Dataset struct {
	Spots   []string
	Signups []string
}

// Loader produces a dataset for a named input (a file path or a campaign)
type Loader interface {
	Load(ctx context.Context, name string) (Dataset, error)
}

// Digest returns a stable hex digest of the dataset. Input order does not
// change the digest, matching the order independence of attribution.
func (d Dataset) Digest() string {
	h := sha256.New()
	for _, group := range [][]string{d.Spots, d.Signups} {
		sorted := append([]string(nil), group...)
		sort.Strings(sorted)
		for _, s := range sorted {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
