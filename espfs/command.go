package espfs

import (
	"encoding/base64"
	"fmt"
)

// HelperType identifies a device-side helper function.
type HelperType int

const (
	HelperStat HelperType = iota
	HelperList
	HelperMkdir
	HelperRmdir
	HelperRemove
	HelperPut
	HelperGet
)

var helperNames = map[HelperType]string{
	HelperStat:   "_esp_stat",
	HelperList:   "_esp_ls",
	HelperMkdir:  "_esp_mkdir",
	HelperRmdir:  "_esp_rmdir",
	HelperRemove: "_esp_rm",
	HelperPut:    "_esp_put",
	HelperGet:    "_esp_get",
}

// Command is one helper call. Use the constructor functions
// (NewStatCommand, NewPutCommand, etc.) to create Command instances.
type Command struct {
	Type HelperType
	Path string

	// Fields used by some helpers (only relevant fields are populated)
	Parents bool   // For mkdir
	Append  bool   // For put
	Data    []byte // For put
	Offset  int64  // For get
	Count   int    // For get
}

// NewStatCommand creates a command describing one path.
func NewStatCommand(p string) Command {
	return Command{Type: HelperStat, Path: p}
}

// NewListCommand creates a directory listing command.
func NewListCommand(p string) Command {
	return Command{Type: HelperList, Path: p}
}

// NewMkdirCommand creates a mkdir command. With parents set, missing
// parents are created and an existing directory is not an error.
func NewMkdirCommand(p string, parents bool) Command {
	return Command{Type: HelperMkdir, Path: p, Parents: parents}
}

// NewRmdirCommand creates a command removing an empty directory.
func NewRmdirCommand(p string) Command {
	return Command{Type: HelperRmdir, Path: p}
}

// NewRemoveCommand creates a command removing a file.
func NewRemoveCommand(p string) Command {
	return Command{Type: HelperRemove, Path: p}
}

// NewPutCommand creates a command writing one chunk. The first chunk of a
// file truncates it; later chunks append.
func NewPutCommand(p string, appendTo bool, data []byte) Command {
	return Command{Type: HelperPut, Path: p, Append: appendTo, Data: data}
}

// NewGetCommand creates a command reading up to count bytes at offset.
func NewGetCommand(p string, offset int64, count int) Command {
	return Command{Type: HelperGet, Path: p, Offset: offset, Count: count}
}

// Name returns the helper function name.
func (c Command) Name() string {
	return helperNames[c.Type]
}

// Format returns the command as one Python statement.
func (c Command) Format() string {
	path := pyQuote(c.Path)
	switch c.Type {
	case HelperMkdir:
		return fmt.Sprintf("%s(%s,%s)", c.Name(), path, pyBool(c.Parents))
	case HelperPut:
		payload := base64.StdEncoding.EncodeToString(c.Data)
		return fmt.Sprintf("%s(%s,%s,'%s')", c.Name(), path, pyBool(c.Append), payload)
	case HelperGet:
		return fmt.Sprintf("%s(%s,%d,%d)", c.Name(), path, c.Offset, c.Count)
	default:
		return fmt.Sprintf("%s(%s)", c.Name(), path)
	}
}

// Lines returns the paste-mode lines for the command.
func (c Command) Lines() []string {
	return []string{c.Format()}
}
