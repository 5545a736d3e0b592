package domain

// SQLValidator classifies SQL text for the write path.
// Implemented by sqlcheck.Checker.
type SQLValidator interface {
	// CheckSelect reports whether text is exactly one SELECT-kind statement.
	CheckSelect(text string) bool
	// CheckFunction reports whether text is exactly one CREATE statement
	// declaring a Python FUNCTION.
	CheckFunction(text string) bool
	// ExtractFunctionName returns the identifier following CREATE FUNCTION,
	// independently of whether the rest of the definition is well-formed.
	ExtractFunctionName(text string) (string, bool)
}
