// Package espprotocol drives the interactive prompt of a MicroPython device
// over a serial line as a framed request/response channel.
//
// The device side offers nothing but its human-oriented REPL, so this package
// layers three pieces on top of a raw duplex port:
//
//   - Scanner: incremental reads matched against prompt and terminator
//     patterns within a timeout, mirroring every byte to an optional sink.
//   - Session: owns the port, runs the DTR/RTS reset sequence and guarantees
//     the interpreter is sitting at its prompt before any operation.
//   - Paste-mode transactions: Ctrl-E enters bulk input, each line is sent
//     verbatim, Ctrl-D compiles and runs it, and the captured output is
//     returned with the interpreter's echo stripped.
//
// # Wire Format
//
//	Reset:        RTS asserted (DTR released), held >= 500ms, RTS released
//	Prompt:       \r\n>>>
//	Paste enter:  \x05  -> \r\npaste mode; Ctrl-C to cancel, Ctrl-D to finish\r\n===
//	Paste line:   <line>\r\n -> <line>\r\n=== \n   (echo)
//	Paste finish: \x04  -> \r\n<output>\r\n>>>
//
// # Basic Usage
//
//	session, err := espprotocol.Open("/dev/ttyUSB0", espprotocol.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.Reset(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := session.Submit(ctx, []string{"print(1+1)"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp.Output) // "2"
//
// # Concurrency
//
// A Session is owned by a single command invocation. Only one transaction is
// outstanding at a time and the type does no locking of its own.
package espprotocol
