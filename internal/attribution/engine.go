package attribution

import (
	"sort"
	"time"
)

// Result is the attribution outcome for one spot.
type Result struct {
	Ordinal  int       `json:"ordinal"` // 1-based, chronological
	SpotTime time.Time `json:"spot_time"`
	Raw      int64     `json:"raw"`
	Adjusted int64     `json:"adjusted"`
}

// Report is the complete output of one attribution pass.
type Report struct {
	Results          []Result    `json:"results"`
	FirstSignup      time.Time   `json:"first_signup"`
	PreBaselineCount int64       `json:"pre_baseline_count"`
	BaselineMinutes  int64       `json:"baseline_minutes"`
	BaselineRate     int64       `json:"baseline_rate"` // signups per minute, floored
	Unattributed     int64       `json:"unattributed"`  // signups landing exactly on a spot time
	Duplicates       []time.Time `json:"duplicates,omitempty"`
}

// Engine attributes signups to spot bins. The zero value is ready to use and
// holds no state between calls.
type Engine struct {
	Policy DuplicatePolicy
}

// NewEngine returns an engine using the given duplicate spot policy.
func NewEngine(policy DuplicatePolicy) *Engine {
	return &Engine{Policy: policy}
}

// Run builds bins from spots and attributes signups against them.
func (e *Engine) Run(spots, signups []string) (*Report, error) {
	bins, err := BuildBins(spots, e.Policy)
	if err != nil {
		return nil, err
	}
	return e.Attribute(bins, signups)
}

// Attribute assigns every signup to the bin whose open interval
// (key_i, key_i+1) contains it, estimates the organic baseline from signups
// before the first spot and returns adjusted counts per bin.
//
// The chronologically first signup seeds the baseline count with 1 and is not
// attributed to any bin. A signup equal to a bin key is counted in no bin. The
// last bin is open ended and its adjusted count equals its raw count.
func (e *Engine) Attribute(set *BinSet, signups []string) (*Report, error) {
	if set == nil || set.Len() == 0 {
		return nil, &InvalidInputError{Kind: "spot", Index: -1, Err: errNoBins}
	}
	if len(signups) == 0 {
		return nil, &InsufficientDataError{Reason: "no signups to attribute"}
	}

	times, err := parseAll("signup", signups)
	if err != nil {
		return nil, err
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	keys := set.Keys()
	firstSignup := times[0]
	baselineMinutes := MinutesBetween(firstSignup, set.First())
	if baselineMinutes <= 0 {
		return nil, &DegenerateIntervalError{
			FirstSignup: firstSignup,
			FirstSpot:   set.First(),
			Minutes:     baselineMinutes,
		}
	}

	counts := make([]int64, len(keys))
	var pre int64 = 1
	var unattributed int64

	for _, t := range times[1:] {
		// j is the first bin whose key is not before t
		j := sort.Search(len(keys), func(i int) bool { return !keys[i].Before(t) })
		switch {
		case j < len(keys) && keys[j].Equal(t):
			unattributed++
		case j == 0:
			pre++
		default:
			counts[j-1]++
		}
	}

	rate := pre / baselineMinutes
	last := len(keys) - 1
	results := make([]Result, len(keys))
	for i, key := range keys {
		adjusted := counts[i]
		if i < last {
			adjusted = abs(counts[i] - MinutesBetween(key, keys[i+1])*rate)
		}
		results[i] = Result{
			Ordinal:  i + 1,
			SpotTime: key,
			Raw:      counts[i],
			Adjusted: adjusted,
		}
	}

	return &Report{
		Results:          results,
		FirstSignup:      firstSignup,
		PreBaselineCount: pre,
		BaselineMinutes:  baselineMinutes,
		BaselineRate:     rate,
		Unattributed:     unattributed,
		Duplicates:       append([]time.Time(nil), set.Duplicates...),
	}, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
