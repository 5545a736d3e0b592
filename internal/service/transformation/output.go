package transformation

import "strings"

// ComposeOutput builds the SELECT that reads a materialized transformation's
// output by wrapping functionName around inputQuery. Surrounding whitespace
// and one trailing semicolon are stripped from the query first.
func ComposeOutput(functionName, inputQuery string) string {
	q := strings.TrimSpace(inputQuery)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	return "SELECT * FROM " + functionName + "((" + q + "))"
}
