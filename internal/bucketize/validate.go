package bucketize

import (
	"fmt"
	"strings"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/sink"
)

// ValidationResult reports post-run consistency checks against the
// committed sink status.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Expected int64    `json:"expected_rows"`
	Actual   int64    `json:"actual_rows"`
	Errors   []string `json:"errors,omitempty"`
}

// ValidateRun checks that the committed status accounts for every
// assigned row. Bucketization emits exactly one cell per assigned row.
func ValidateRun(status *sink.Status, expectedRows int64) *ValidationResult {
	result := &ValidationResult{Expected: expectedRows}
	if status == nil {
		result.Errors = append(result.Errors, "no commit status")
		return result
	}
	result.Actual = status.RowCount

	if status.RowCount != expectedRows {
		result.Errors = append(result.Errors,
			fmt.Sprintf("row count mismatch: committed %d, assigned %d", status.RowCount, expectedRows))
	}
	if status.CellCount != expectedRows {
		result.Errors = append(result.Errors,
			fmt.Sprintf("cell count mismatch: committed %d, assigned %d", status.CellCount, expectedRows))
	}
	if status.URI != "" && !strings.HasPrefix(status.Checksum, "sha256:") {
		result.Errors = append(result.Errors,
			fmt.Sprintf("malformed checksum %q", status.Checksum))
	}

	result.Valid = len(result.Errors) == 0
	return result
}
