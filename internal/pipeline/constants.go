package pipeline

// Stage names of the transactions flow, in execution order. Engines and run
// logs refer to stages by these names.
const (
	StageRead   = "Read CSV"
	StageParse  = "Parse CSV"
	StageFormat = "Format Data"
	StageFilter = "Filter Invalid Records"
	StageWrite  = "Write to BigQuery"
)

// Stages lists the five stages in order.
var Stages = []string{StageRead, StageParse, StageFormat, StageFilter, StageWrite}

const (
	// FieldDelimiter separates columns in an input line.
	FieldDelimiter = ","

	// ExpectedFieldCount is the number of columns a line must split into to survive.
	ExpectedFieldCount = 4

	// DefaultAmount replaces an amount that does not parse as a number.
	DefaultAmount = 0.0
)
