package espfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  error
	}{
		{"ok", []string{"!OK"}, nil},
		{"not found", []string{"!ENOENT"}, ErrNotFound},
		{"exists", []string{"!EEXIST"}, ErrAlreadyExists},
		{"is dir", []string{"!EISDIR"}, ErrIsADirectory},
		{"not dir", []string{"!ENOTDIR"}, ErrNotADirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseStatus("_esp_rm", tt.lines)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseStatusMalformed(t *testing.T) {
	for _, lines := range [][]string{nil, {"hello"}, {"!EWHAT"}} {
		err := parseStatus("_esp_rm", lines)
		var parseErr *ParseError
		assert.True(t, errors.As(err, &parseErr), "lines %q: err = %v", lines, err)
	}
}

func TestParseStat(t *testing.T) {
	entry, err := parseStat("_esp_stat", []string{"F\t1234"})
	require.NoError(t, err)
	assert.Equal(t, Entry{Size: 1234}, entry)

	entry, err = parseStat("_esp_stat", []string{"D\t0"})
	require.NoError(t, err)
	assert.True(t, entry.IsDir)

	_, err = parseStat("_esp_stat", []string{"!ENOENT"})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range [][]string{{"X\t1"}, {"F\tlots"}, {"F"}, {"!OK"}, {"F\t1", "F\t2"}} {
		_, err = parseStat("_esp_stat", bad)
		var parseErr *ParseError
		assert.True(t, errors.As(err, &parseErr), "input %q", bad)
	}
}

func TestParseList(t *testing.T) {
	entries, err := parseList("_esp_ls", []string{
		"webrepl_cfg.py\t45",
		"lib/\t0",
		"boot.py\t139",
		"assets/\t0",
		"!OK",
	})
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "assets", IsDir: true},
		{Name: "lib", IsDir: true},
		{Name: "boot.py", Size: 139},
		{Name: "webrepl_cfg.py", Size: 45},
	}, entries)

	entries, err = parseList("_esp_ls", []string{"!OK"})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = parseList("_esp_ls", []string{"!ENOTDIR"})
	assert.ErrorIs(t, err, ErrNotADirectory)

	_, err = parseList("_esp_ls", []string{"no-tab", "!OK"})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ErrKindInvalidEntry, parseErr.Kind)
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("_esp_put", []string{"128"})
	require.NoError(t, err)
	assert.Equal(t, 128, n)

	_, err = parseCount("_esp_put", []string{"!EISDIR"})
	assert.ErrorIs(t, err, ErrIsADirectory)

	_, err = parseCount("_esp_put", []string{"-1"})
	assert.Error(t, err)
}

func TestParsePayload(t *testing.T) {
	data, err := parsePayload("_esp_get", []string{"AAEC/w=="})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, data)

	data, err = parsePayload("_esp_get", nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = parsePayload("_esp_get", []string{"!ENOENT"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = parsePayload("_esp_get", []string{"not base64!"})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, ErrKindInvalidPayload, parseErr.Kind)
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{Kind: ErrKindInvalidStat, Value: "X", Helper: "_esp_stat"}
	assert.Equal(t, "_esp_stat: invalid stat result 'X'", err.Error())
}
