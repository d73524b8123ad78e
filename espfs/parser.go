package espfs

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Status lines printed by the helpers.
const (
	StatusOK       = "!OK"
	StatusNotFound = "!ENOENT"
	StatusExists   = "!EEXIST"
	StatusIsDir    = "!EISDIR"
	StatusNotDir   = "!ENOTDIR"
)

var statusErrors = map[string]error{
	StatusNotFound: ErrNotFound,
	StatusExists:   ErrAlreadyExists,
	StatusIsDir:    ErrIsADirectory,
	StatusNotDir:   ErrNotADirectory,
}

// statusError converts a status line to its error. ok is false when line
// is not a status line at all.
func statusError(helper, line string) (err error, ok bool) {
	if !strings.HasPrefix(line, "!") {
		return nil, false
	}
	if line == StatusOK {
		return nil, true
	}
	if err, found := statusErrors[line]; found {
		return err, true
	}
	return &ParseError{Kind: ErrKindUnexpectedStatus, Value: line, Helper: helper}, true
}

// parseStatus expects exactly one status line.
func parseStatus(helper string, lines []string) error {
	if len(lines) == 0 {
		return &ParseError{Kind: ErrKindMissingResult, Helper: helper}
	}
	last := lines[len(lines)-1]
	err, ok := statusError(helper, last)
	if !ok {
		return &ParseError{Kind: ErrKindUnexpectedStatus, Value: last, Helper: helper}
	}
	return err
}

// parseStat parses "D\t<size>" or "F\t<size>".
func parseStat(helper string, lines []string) (Entry, error) {
	if len(lines) != 1 {
		return Entry{}, &ParseError{Kind: ErrKindInvalidStat, Value: strings.Join(lines, "\\n"), Helper: helper}
	}
	line := lines[0]
	if err, ok := statusError(helper, line); ok {
		if err == nil {
			err = &ParseError{Kind: ErrKindInvalidStat, Value: line, Helper: helper}
		}
		return Entry{}, err
	}

	kind, sizeText, found := strings.Cut(line, "\t")
	if !found || (kind != "D" && kind != "F") {
		return Entry{}, &ParseError{Kind: ErrKindInvalidStat, Value: line, Helper: helper}
	}
	size, err := strconv.ParseInt(sizeText, 10, 64)
	if err != nil {
		return Entry{}, &ParseError{Kind: ErrKindInvalidStat, Value: line, Helper: helper}
	}
	return Entry{IsDir: kind == "D", Size: size}, nil
}

// parseList parses "name[/]\t<size>" lines terminated by "!OK".
func parseList(helper string, lines []string) ([]Entry, error) {
	if err := parseStatus(helper, lines); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(lines)-1)
	for _, line := range lines[:len(lines)-1] {
		name, sizeText, found := strings.Cut(line, "\t")
		if !found || name == "" {
			return nil, &ParseError{Kind: ErrKindInvalidEntry, Value: line, Helper: helper}
		}
		size, err := strconv.ParseInt(sizeText, 10, 64)
		if err != nil {
			return nil, &ParseError{Kind: ErrKindInvalidEntry, Value: line, Helper: helper}
		}
		entry := Entry{Name: name, Size: size}
		if strings.HasSuffix(name, "/") {
			entry.Name = strings.TrimSuffix(name, "/")
			entry.IsDir = true
			entry.Size = 0
		}
		entries = append(entries, entry)
	}
	sortEntries(entries)
	return entries, nil
}

// parseCount parses the byte count printed by the put helper.
func parseCount(helper string, lines []string) (int, error) {
	if len(lines) != 1 {
		return 0, &ParseError{Kind: ErrKindInvalidCount, Value: strings.Join(lines, "\\n"), Helper: helper}
	}
	if err, ok := statusError(helper, lines[0]); ok {
		if err == nil {
			err = &ParseError{Kind: ErrKindInvalidCount, Value: lines[0], Helper: helper}
		}
		return 0, err
	}
	n, err := strconv.Atoi(lines[0])
	if err != nil || n < 0 {
		return 0, &ParseError{Kind: ErrKindInvalidCount, Value: lines[0], Helper: helper}
	}
	return n, nil
}

// parsePayload decodes the base64 line printed by the get helper. An empty
// line, which arrives as no output at all, means end of file.
func parsePayload(helper string, lines []string) ([]byte, error) {
	if len(lines) == 0 {
		return []byte{}, nil
	}
	if len(lines) != 1 {
		return nil, &ParseError{Kind: ErrKindInvalidPayload, Value: strings.Join(lines, "\\n"), Helper: helper}
	}
	if err, ok := statusError(helper, lines[0]); ok {
		if err == nil {
			err = &ParseError{Kind: ErrKindInvalidPayload, Value: lines[0], Helper: helper}
		}
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, &ParseError{Kind: ErrKindInvalidPayload, Value: lines[0], Helper: helper}
	}
	return data, nil
}
