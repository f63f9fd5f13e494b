package changefeed

import (
	"encoding/json"
	"fmt"
)

type Condition struct {
	Column string
	Value  string
}

// Filter is a conjunction of equality conditions on top-level row fields.
// A nil Filter matches every event.
type Filter []Condition

// Eq builds a single-condition filter. The value is compared by its string form.
func Eq(column string, value any) Filter {
	return Filter{{Column: column, Value: fmt.Sprint(value)}}
}

func (f Filter) And(column string, value any) Filter {
	out := make(Filter, len(f), len(f)+1)
	copy(out, f)
	return append(out, Condition{Column: column, Value: fmt.Sprint(value)})
}

func (f Filter) Match(e Event) bool {
	if len(f) == 0 {
		return true
	}

	var row map[string]any
	if err := json.Unmarshal(e.Row, &row); err != nil {
		return false
	}

	for _, c := range f {
		v, ok := row[c.Column]
		if !ok || v == nil {
			return false
		}
		if fmt.Sprint(v) != c.Value {
			return false
		}
	}
	return true
}
