package bigquery

import (
	"fmt"
	"regexp"
	"strings"
)

// TableRef identifies a BigQuery table by project, dataset and table ID.
type TableRef struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// ParseTableSpec parses "project:dataset.table" (the legacy form used in
// pipeline options) or "project.dataset.table". A spec without a project,
// "dataset.table", takes defaultProject.
func ParseTableSpec(spec, defaultProject string) (TableRef, error) {
	spec = strings.Trim(strings.TrimSpace(spec), "`")
	if spec == "" {
		return TableRef{}, fmt.Errorf("ParseTableSpec: empty table spec")
	}

	var ref TableRef
	if project, rest, ok := strings.Cut(spec, ":"); ok {
		parts := strings.Split(rest, ".")
		if len(parts) != 2 {
			return TableRef{}, fmt.Errorf("ParseTableSpec: %q: want project:dataset.table", spec)
		}
		ref = TableRef{ProjectID: project, DatasetID: parts[0], TableID: parts[1]}
	} else {
		parts := strings.Split(spec, ".")
		switch len(parts) {
		case 3:
			ref = TableRef{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}
		case 2:
			ref = TableRef{ProjectID: defaultProject, DatasetID: parts[0], TableID: parts[1]}
		default:
			return TableRef{}, fmt.Errorf("ParseTableSpec: %q: want project.dataset.table", spec)
		}
	}

	if ref.ProjectID == "" || ref.DatasetID == "" || ref.TableID == "" {
		return TableRef{}, fmt.Errorf("ParseTableSpec: %q: project, dataset and table are all required", spec)
	}
	return ref, nil
}

// String renders the ref in the project:dataset.table form.
func (r TableRef) String() string {
	return fmt.Sprintf("%s:%s.%s", r.ProjectID, r.DatasetID, r.TableID)
}

// SQLName renders the ref as a quoted identifier for standard SQL.
func (r TableRef) SQLName() string {
	return fmt.Sprintf("`%s.%s.%s`", r.ProjectID, r.DatasetID, r.TableID)
}

// InDataset returns a ref to another table in the same project and dataset.
func (r TableRef) InDataset(tableID string) TableRef {
	return TableRef{ProjectID: r.ProjectID, DatasetID: r.DatasetID, TableID: tableID}
}

var invalidJobIDChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// JobIDPrefix turns a free-form job name into a valid BigQuery job ID prefix.
func JobIDPrefix(name string) string {
	prefix := invalidJobIDChars.ReplaceAllString(strings.TrimSpace(name), "_")
	const maxLen = 900
	if len(prefix) > maxLen {
		prefix = prefix[:maxLen]
	}
	return prefix
}
