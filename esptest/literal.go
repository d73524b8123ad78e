package esptest

import (
	"fmt"
	"strconv"
	"strings"
)

// parseCall splits "name(arg, ...)" into the function name and its literal
// arguments. Supported literals are quoted strings, integers, True and False.
func parseCall(line string) (string, []any, error) {
	open := strings.IndexByte(line, '(')
	if open < 0 || !strings.HasSuffix(line, ")") {
		return "", nil, fmt.Errorf("not a call: %q", line)
	}
	name := line[:open]
	args, err := parseArgs(line[open+1 : len(line)-1])
	return name, args, err
}

func parseArgs(s string) ([]any, error) {
	var args []any
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return args, nil
		}
		value, rest, err := parseLiteral(s)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
		s = strings.TrimLeft(rest, " ")
		if s == "" {
			return args, nil
		}
		if s[0] != ',' {
			return nil, fmt.Errorf("expected ',' at %q", s)
		}
		s = s[1:]
	}
}

// parseLiteral parses one literal at the start of s and returns the rest.
func parseLiteral(s string) (any, string, error) {
	switch {
	case strings.HasPrefix(s, "True"):
		return true, s[4:], nil
	case strings.HasPrefix(s, "False"):
		return false, s[5:], nil
	case s[0] == '\'' || s[0] == '"':
		return parseString(s)
	}

	end := 0
	for end < len(s) && (s[end] == '-' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil, "", fmt.Errorf("unsupported literal %q", s)
	}
	return n, s[end:], nil
}

func parseString(s string) (string, string, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == quote {
			return b.String(), s[i+1:], nil
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		switch s[i] {
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[s[i]]
			if i+width >= len(s) {
				return "", "", fmt.Errorf("truncated escape in %q", s)
			}
			code, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil {
				return "", "", err
			}
			b.WriteRune(rune(code))
			i += width
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", fmt.Errorf("unterminated string %q", s)
}

// EvalPrints runs programs made of print() calls with one literal argument
// each, one per line. Anything else raises a NameError, as an unknown
// name would on a real board.
func EvalPrints(source string) string {
	var out strings.Builder
	for i, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, args, err := parseCall(line)
		if err != nil || name != "print" {
			return out.String() + traceback(i+1, "NameError: name '"+callName(line)+"' isn't defined")
		}
		parts := make([]string, len(args))
		for j, arg := range args {
			switch v := arg.(type) {
			case bool:
				parts[j] = map[bool]string{true: "True", false: "False"}[v]
			default:
				parts[j] = fmt.Sprint(v)
			}
		}
		out.WriteString(strings.Join(parts, " ") + "\n")
	}
	return out.String()
}

func callName(line string) string {
	end := strings.IndexAny(line, "( =")
	if end < 0 {
		return line
	}
	return line[:end]
}

func traceback(line int, message string) string {
	return "Traceback (most recent call last):\n" +
		fmt.Sprintf("  File \"<stdin>\", line %d, in <module>\n", line) +
		message + "\n"
}
