package attribution

import "fmt"

// Line renders one result the way it is reported to people.
func (r Result) Line() string {
	return fmt.Sprintf("Spot %d: %d new users", r.Ordinal, r.Adjusted)
}

// Lines renders every result in chronological spot order.
func (r *Report) Lines() []string {
	lines := make([]string, len(r.Results))
	for i, res := range r.Results {
		lines[i] = res.Line()
	}
	return lines
}
