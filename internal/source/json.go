package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sawpanic/spotlift/internal/attribution"
)

// document mirrors the campaign export: {"tvSpots":[{"time":...}], "newUsers":[{"time":...}]}
type document struct {
	TVSpots  *[]record `json:"tvSpots"`
	NewUsers *[]record `json:"newUsers"`
}

type record struct {
	Time *string `json:"time"`
}

// DecodeJSON reads a campaign export. Missing collections or records without
// a time field are reported as attribution.InvalidInputError.
func DecodeJSON(r io.Reader) (Dataset, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Dataset{}, &attribution.InvalidInputError{Kind: "document", Index: -1, Err: err}
	}

	spots, err := times("spot", "tvSpots", doc.TVSpots)
	if err != nil {
		return Dataset{}, err
	}
	signups, err := times("signup", "newUsers", doc.NewUsers)
	if err != nil {
		return Dataset{}, err
	}

	return Dataset{Spots: spots, Signups: signups}, nil
}

// EncodeJSON writes a dataset in the campaign export shape
func EncodeJSON(w io.Writer, d Dataset) error {
	wrap := func(ts []string) *[]record {
		out := make([]record, len(ts))
		for i := range ts {
			out[i] = record{Time: &ts[i]}
		}
		return &out
	}
	return json.NewEncoder(w).Encode(document{TVSpots: wrap(d.Spots), NewUsers: wrap(d.Signups)})
}

func times(kind, field string, records *[]record) ([]string, error) {
	if records == nil {
		return nil, &attribution.InvalidInputError{
			Kind:  kind,
			Index: -1,
			Err:   fmt.Errorf("missing %q collection", field),
		}
	}
	out := make([]string, len(*records))
	for i, rec := range *records {
		if rec.Time == nil {
			return nil, &attribution.InvalidInputError{Kind: kind, Index: i, Err: errors.New("record has no time field")}
		}
		out[i] = *rec.Time
	}
	return out, nil
}

// FileLoader loads campaign exports from the filesystem
type FileLoader struct{}

// Load reads the JSON export at path
func (FileLoader) Load(_ context.Context, path string) (Dataset, error) {
	return LoadJSONFile(path)
}

// LoadJSONFile opens and decodes the JSON export at path
func LoadJSONFile(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	ds, err := DecodeJSON(f)
	if err != nil {
		return Dataset{}, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}
