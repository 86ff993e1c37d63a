package pipeline

import "strings"

// SplitLine splits one input line on FieldDelimiter. There is no quoting or
// escaping: a delimiter inside a value produces an extra field, which the
// format step then rejects on arity. An empty line yields [""].
func SplitLine(line string) []string {
	return strings.Split(line, FieldDelimiter)
}
