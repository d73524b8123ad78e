package espprotocol

import (
	"strings"
)

// Response is the captured result of one paste-mode transaction.
type Response struct {
	// Raw is everything received between the paste banner and the prompt,
	// echo included, exactly as the device sent it.
	Raw []byte

	// Output is the program output with the echo stripped and line endings
	// normalised to "\n".
	Output string
}

// newResponse builds a Response from raw bytes and the echo-stripped text.
func newResponse(raw []byte, stripped string) Response {
	return Response{
		Raw:    raw,
		Output: strings.ReplaceAll(stripped, EOL, "\n"),
	}
}

// Lines returns the output split into lines. Returns nil for empty output.
func (r Response) Lines() []string {
	if r.Output == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(r.Output, "\n"), "\n")
}

// LastLine returns the last output line, or empty string.
func (r Response) LastLine() string {
	lines := r.Lines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// fault returns the first marker that starts an output line.
// Markers only count at the start of a line, so program text that merely
// mentions a marker mid-line is not mistaken for a fault.
func (r Response) fault(markers []string) (string, bool) {
	for _, line := range r.Lines() {
		for _, marker := range markers {
			if marker != "" && strings.HasPrefix(line, marker) {
				return marker, true
			}
		}
	}
	return "", false
}
