package intent

import (
	"strings"

	"github.com/hupe1980/swarmchat/core"
)

// Intent is the routing category of a request.
type Intent int

const (
	// Generic requests are sent directly without decomposition.
	Generic Intent = iota
	// Python requests run the four-role development pipeline.
	Python
	// SQL requests are handed to the data engineer.
	SQL
)

// String returns the lower-case intent name.
func (i Intent) String() string {
	switch i {
	case Python:
		return "python"
	case SQL:
		return "sql"
	default:
		return "generic"
	}
}

var templates = map[Intent][]string{
	Python: {
		"I need project manager agent to break down the task into 3 parts ",
		"I need software engineer agent to develop the code in python with function args ",
		"connect to tester to generate assert for  ",
		"I need deployment engineer for documentation for  ",
	},
	SQL: {
		"I need data engineer for ",
	},
}

// Detect returns the intent of text. Matching is case-insensitive and python
// takes priority over sql.
func Detect(text string) Intent {
	lowered := strings.ToLower(text)
	switch {
	case strings.Contains(lowered, "python"):
		return Python
	case strings.Contains(lowered, "sql"):
		return SQL
	default:
		return Generic
	}
}

// Templates returns a copy of the instruction prefixes for an intent. Generic
// has none.
func Templates(i Intent) []string {
	return append([]string(nil), templates[i]...)
}

// Classify maps text to its pipeline. It never fails; unmatched input (the
// empty string included) yields the empty pipeline.
func Classify(text string) core.Pipeline {
	prefixes := templates[Detect(text)]
	if len(prefixes) == 0 {
		return core.Pipeline{}
	}
	p := make(core.Pipeline, len(prefixes))
	for i, prefix := range prefixes {
		p[i] = core.Step(prefix + text)
	}
	return p
}
