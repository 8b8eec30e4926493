// Package intake turns storage notifications into routed run requests. It
// supports push mode (kafka notification topic) and poll mode (bucket
// listing cross-checked against the state store), both feeding the same
// router and hand-off contract.
package intake

// Task size tiers. The tier selects the compute profile a file is processed
// on; every size-to-tier decision in the pipeline goes through TaskSize so
// the boundaries live in exactly one place.
const (
	TaskSizeLambda = "lambda"
	TaskSizeMedium = "medium"
	TaskSizeLarge  = "large"
	TaskSizeXLarge = "xlarge"
)

// Tier boundaries in bytes. A file exactly on a boundary lands in the
// higher tier.
const (
	lambdaMaxBytes = 50 * 1024 * 1024
	mediumMaxBytes = 200 * 1024 * 1024
	largeMaxBytes  = 500 * 1024 * 1024
)

// TaskSize classifies a file size into a compute tier.
func TaskSize(bytes int64) string {
	switch {
	case bytes < lambdaMaxBytes:
		return TaskSizeLambda
	case bytes < mediumMaxBytes:
		return TaskSizeMedium
	case bytes < largeMaxBytes:
		return TaskSizeLarge
	default:
		return TaskSizeXLarge
	}
}

// ValidTaskSize reports whether s is a known tier name.
func ValidTaskSize(s string) bool {
	switch s {
	case TaskSizeLambda, TaskSizeMedium, TaskSizeLarge, TaskSizeXLarge:
		return true
	}

	return false
}
