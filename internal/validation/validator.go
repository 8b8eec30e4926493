// Package validation provides structural validation of file samples against a
// dataset's required-column schema.
//
// Validation is a best-effort gate, not a hard contract: only a bounded
// prefix of the file is examined, and any unexpected failure inside the
// validator reports the file as valid (fail-open). A validation-layer bug
// must never block a file that would otherwise have processed correctly.
package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format identifies the structural family a sample is validated as.
type Format string

const (
	FormatCSV         Format = "csv"
	FormatJSON        Format = "json"
	FormatUnsupported Format = "unsupported"
)

// Sample size bounds: only the first N bytes of a file are ever fetched for
// validation, so a multi-hundred-megabyte file is never downloaded just to
// check its header.
const (
	csvSampleSize  = 8 * 1024
	jsonSampleSize = 16 * 1024
)

// Column value types understood by the validator.
const (
	TypeDate   = "date"
	TypeNumber = "number"
	TypeString = "string"
)

// datePatterns are accepted in addition to anything time.Parse handles.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`), // MM/DD/YYYY
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), // YYYY-MM-DD
	regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`), // MM-DD-YYYY
}

// dateLayouts tried before falling back to the pattern match.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
}

// ColumnSpec declares one required column and its expected value type.
type ColumnSpec struct {
	Name string
	Type string
}

// Result is the outcome of one structure validation.
type Result struct {
	Valid  bool
	Errors []string
}

// DetectFormat maps a file extension (with or without leading dot) to the
// validation format. Anything that is not CSV or JSON skips structure
// validation entirely.
func DetectFormat(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return FormatCSV
	case "json", "jsonl", "ndjson":
		return FormatJSON
	default:
		return FormatUnsupported
	}
}

// SampleSize returns how many bytes of the file should be fetched for
// validating the given format. Zero means no sample is needed.
func SampleSize(format Format) int64 {
	switch format {
	case FormatCSV:
		return csvSampleSize
	case FormatJSON:
		return jsonSampleSize
	default:
		return 0
	}
}

// Validate checks whether a file sample satisfies the required-column schema.
//
// Fail-open policy: a panic anywhere in the validation path is recovered and
// reported as valid. Callers that hit I/O errors while fetching the sample
// should likewise treat the file as valid rather than propagate the error.
func Validate(sample []byte, format Format, schema []ColumnSpec) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Structure validation panicked, failing open",
				slog.String("format", string(format)),
				slog.Any("panic", r))

			result = Result{Valid: true}
		}
	}()

	if len(schema) == 0 {
		return Result{Valid: true}
	}

	switch format {
	case FormatCSV:
		return validateCSV(sample, schema)
	case FormatJSON:
		return validateJSON(sample, schema)
	default:
		// Unsupported extensions skip structure validation entirely.
		return Result{Valid: true}
	}
}

// validateCSV parses the header line and the first data line of the sample
// and checks every required column for presence and, when a non-empty first
// value exists, for type conformance.
func validateCSV(sample []byte, schema []ColumnSpec) Result {
	lines := splitSampleLines(string(sample))
	if len(lines) == 0 {
		return Result{Valid: false, Errors: []string{"file is empty"}}
	}

	header := SplitCSVLine(lines[0])

	var firstRow []string
	if len(lines) > 1 {
		firstRow = SplitCSVLine(lines[1])
	}

	// Case-insensitive header index
	headerIndex := make(map[string]int, len(header))
	for i, name := range header {
		headerIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var errs []string

	for _, col := range schema {
		idx, found := headerIndex[strings.ToLower(col.Name)]
		if !found {
			errs = append(errs, fmt.Sprintf("required column %q not found in header", col.Name))

			continue
		}

		if idx >= len(firstRow) {
			continue
		}

		value := strings.TrimSpace(firstRow[idx])
		if value == "" {
			continue
		}

		if err := checkValueType(value, col.Type); err != nil {
			errs = append(errs, fmt.Sprintf("column %q: %v", col.Name, err))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// validateJSON accepts a JSON array (validates element 0), a single JSON
// object, or JSON-Lines (validates line 0).
func validateJSON(sample []byte, schema []ColumnSpec) Result {
	trimmed := strings.TrimSpace(string(sample))
	if trimmed == "" {
		return Result{Valid: false, Errors: []string{"file is empty"}}
	}

	// The sample may truncate the document mid-token; recover the longest
	// decodable prefix by decoding just the first value.
	var arr []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &arr); err == nil {
		if len(arr) == 0 {
			return Result{Valid: true}
		}

		return validateRecord(arr[0], schema)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return validateRecord(obj, schema)
	}

	// JSON-Lines: validate the first non-blank line.
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return Result{Valid: false, Errors: []string{fmt.Sprintf("first line is not valid JSON: %v", err)}}
		}

		return validateRecord(record, schema)
	}

	return Result{Valid: false, Errors: []string{"no JSON records found in sample"}}
}

// validateRecord checks one decoded record for required fields and types.
// Field matching is case-insensitive; null values skip the type check.
func validateRecord(record map[string]any, schema []ColumnSpec) Result {
	lower := make(map[string]any, len(record))
	for k, v := range record {
		lower[strings.ToLower(k)] = v
	}

	var errs []string

	for _, col := range schema {
		value, found := lower[strings.ToLower(col.Name)]
		if !found {
			errs = append(errs, fmt.Sprintf("required field %q not found", col.Name))

			continue
		}

		if value == nil {
			continue
		}

		if err := checkJSONValueType(value, col.Type); err != nil {
			errs = append(errs, fmt.Sprintf("field %q: %v", col.Name, err))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// checkValueType validates a raw string value against a declared column type.
func checkValueType(value, colType string) error {
	switch strings.ToLower(colType) {
	case TypeDate:
		if !isValidDate(value) {
			return fmt.Errorf("value %q is not a valid date", value)
		}
	case TypeNumber:
		if !isValidNumber(value) {
			return fmt.Errorf("value %q is not a valid number", value)
		}
	default:
		// string and unconstrained types accept anything
	}

	return nil
}

// checkJSONValueType validates a decoded JSON value against a declared type.
func checkJSONValueType(value any, colType string) error {
	switch strings.ToLower(colType) {
	case TypeDate:
		s, ok := value.(string)
		if !ok || !isValidDate(s) {
			return fmt.Errorf("value %v is not a valid date", value)
		}
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("value %v is not a finite number", value)
			}
		case string:
			if !isValidNumber(v) {
				return fmt.Errorf("value %q is not a valid number", v)
			}
		default:
			return fmt.Errorf("value %v is not a number", value)
		}
	default:
	}

	return nil
}

// isValidDate reports whether a string parses with any known layout or
// matches one of the accepted date patterns.
func isValidDate(value string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}

	for _, pattern := range datePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}

	return false
}

// isValidNumber reports whether a string converts to a finite numeric value.
func isValidNumber(value string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false
	}

	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// splitSampleLines splits a sample into lines, dropping a trailing partial
// line artifact of the byte-range fetch only when more than one line exists.
func splitSampleLines(sample string) []string {
	sample = strings.ReplaceAll(sample, "\r\n", "\n")

	var lines []string

	for _, line := range strings.Split(sample, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
