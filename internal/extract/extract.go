// Package extract pulls generated code out of model replies.
package extract

import "regexp"

var pythonBlock = regexp.MustCompile("(?s)```python\n(.*?)\n```")

// PythonBlock returns the body of the first ```python fenced block in text,
// or "" when there is none. Later blocks are ignored and the body is not validated.
func PythonBlock(text string) string {
	m := pythonBlock.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// HasPythonBlock reports whether text contains a ```python fenced block.
func HasPythonBlock(text string) bool {
	return pythonBlock.MatchString(text)
}
