// Package espfs exposes the filesystem of a MicroPython device, and of the
// host, behind one Filesystem interface, and moves file trees between them.
//
// # Remote access
//
// Remote runs every operation as Python statements in paste mode. A small
// helper prelude is installed on the device once per session generation;
// each operation is then a single helper call whose output is one or more
// tab-separated lines ending in a status line:
//
//	_esp_ls('/lib')
//	drivers/	0
//	main.py	1234
//	!OK
//
// Status lines are "!OK", "!ENOENT", "!EEXIST", "!EISDIR" and "!ENOTDIR";
// they map onto ErrNotFound, ErrAlreadyExists, ErrIsADirectory and
// ErrNotADirectory. File contents travel as base64 in chunks, each chunk
// being its own transaction.
//
// # Transfers
//
// BuildPlan walks the source tree and decides mkdir, copy or skip for every
// item before anything is written. Conflicts are collected and returned
// together as *TransferAbortedError. Plan.Execute creates all directories
// first, then copies files in plan order.
//
//	plan, err := espfs.BuildPlan(ctx, local, "app", remote, "/", opts)
//	if err != nil {
//	    return err
//	}
//	return plan.Execute(ctx, local, remote)
package espfs
