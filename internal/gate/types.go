package gate

import "github.com/weaverlabs/coordination/internal/invalidation"

// #region result
// Result is the outcome of a validate-before-respond check.
type Result struct {
	WorkerID         string
	SafeToRespond    bool
	ShouldTerminate  bool
	Reason           string
	Recommendation   string
	Kind             invalidation.Kind
	ConflictingEntry int
	NewEntries       int // entries found beyond the worker's watermark
	Confidence       float64
}

// #endregion result
