package attribution

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var errNoBins = errors.New("no spots to attribute against")

// DuplicatePolicy controls what BuildBins does with repeated spot timestamps.
type DuplicatePolicy string

const (
	// DuplicatesCollapse folds repeated timestamps into one bin and records
	// them on BinSet.Duplicates.
	DuplicatesCollapse DuplicatePolicy = "collapse"
	// DuplicatesReject fails with InvalidInputError.
	DuplicatesReject DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy maps a config or flag value to a policy. Empty means collapse.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicatesCollapse:
		return DuplicatesCollapse, nil
	case DuplicatesReject:
		return DuplicatesReject, nil
	default:
		return "", fmt.Errorf("unknown duplicate spot policy %q (collapse|reject)", s)
	}
}

// BinSet is the ordered bin sequence produced by the interval builder. Each
// key is a spot's broadcast time and owns the window up to the next key.
// Keys are strictly increasing. It is not modified after construction.
type BinSet struct {
	keys       []time.Time
	Duplicates []time.Time // spot timestamps folded into an existing bin
}

// Len returns the number of bins.
func (s *BinSet) Len() int { return len(s.keys) }

// Keys returns a copy of the bin keys in ascending order.
func (s *BinSet) Keys() []time.Time {
	return append([]time.Time(nil), s.keys...)
}

// First returns the earliest bin key.
func (s *BinSet) First() time.Time { return s.keys[0] }

// BuildBins parses spot timestamps (any order) and returns one zeroed bin per
// distinct timestamp, sorted ascending.
func BuildBins(spots []string, policy DuplicatePolicy) (*BinSet, error) {
	if len(spots) == 0 {
		return nil, &InvalidInputError{Kind: "spot", Index: -1, Err: errNoBins}
	}

	times, err := parseAll("spot", spots)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })

	set := &BinSet{keys: make([]time.Time, 0, len(times))}
	for _, idx := range order {
		t := times[idx]
		if n := len(set.keys); n > 0 && set.keys[n-1].Equal(t) {
			if policy == DuplicatesReject {
				return nil, &InvalidInputError{
					Kind:  "spot",
					Index: idx,
					Value: spots[idx],
					Err:   errors.New("duplicate spot timestamp"),
				}
			}
			set.Duplicates = append(set.Duplicates, t)
			continue
		}
		set.keys = append(set.keys, t)
	}

	return set, nil
}
