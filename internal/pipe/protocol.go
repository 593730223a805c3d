// Package pipe implements the one-byte request/response protocol the
// worker speaks with its parent orchestrator: phase and cursor
// sequencing over two inherited pipe file descriptors.
//
// Mirrors ctrl/control.go's command/response shape (build a request,
// submit, interpret the result) and the per-tag state machine of
// queue/runner.go (an expected-state counter that a mismatched
// completion violates fatally).
package pipe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Command is the decoded meaning of one token read from the parent.
type Command int

const (
	// CmdReset is the '0' token: snap cursor to zero, re-enter publish-initial.
	CmdReset Command = iota
	// CmdAdvance is an 'a'..'h' token: advance the named lump one environment step.
	CmdAdvance
	// CmdQuit is the 'Q' token: exit cleanly.
	CmdQuit
)

// Protocol drives the token alphabet and the lump/cursor bookkeeping
// for the phase and round-robin lump schedule. It does no emulation and
// touches no tensor — it only knows how to read/validate/write one-byte
// tokens and track whose turn it is.
type Protocol struct {
	readFD, writeFD int
	maxLump         int
	expectedLump    int
	cursor          int
}

// New wraps the two inherited pipe file descriptors. maxLump is LUMP,
// the number of synchronization groups the parent drives round-robin.
func New(readFD, writeFD, maxLump int) *Protocol {
	return &Protocol{readFD: readFD, writeFD: writeFD, maxLump: maxLump}
}

// SendReady sends the single 'R' token, exactly once, right after
// fleet construction.
func (p *Protocol) SendReady() error {
	return p.writeByte('R')
}

// SendAck acknowledges completion of lump l, during either
// publish-initial or steady state.
func (p *Protocol) SendAck(l int) error {
	return p.writeByte('a' + byte(l))
}

// Cursor returns the worker's current view of the ring cursor (the
// action-read index for the next Advance command it will decode).
func (p *Protocol) Cursor() int { return p.cursor }

// Next blocks for the next token from the parent and decodes it.
//
// For CmdAdvance, the returned cursor is the slot whose action the
// caller should read; the target slot for the resulting observation is
// cursor+1 (the engine's "save" value). Internally, Next advances the
// expected-lump counter and, whenever it wraps back to 0, advances the
// cursor for the round that follows.
//
// A read of anything other than exactly one byte is a transport loss:
// Next returns a plain (non-fatal) error the caller should treat as a
// silent clean exit, never retried.
func (p *Protocol) Next() (cmd Command, lump int, cursor int, err error) {
	var buf [1]byte
	n, rerr := unix.Read(p.readFD, buf[:])
	if rerr != nil || n != 1 {
		return 0, 0, 0, fmt.Errorf("pipe: short read on control channel (n=%d): %w", n, rerr)
	}

	tok := buf[0]
	switch {
	case tok == '0':
		p.cursor = 0
		p.expectedLump = 0
		return CmdReset, 0, 0, nil

	case tok == 'Q':
		return CmdQuit, 0, 0, nil

	case tok >= 'a' && int(tok-'a') < p.maxLump:
		l := int(tok - 'a')
		if l != p.expectedLump {
			return 0, 0, 0, fmt.Errorf("pipe: synchronization error: expected lump %d, got %d", p.expectedLump, l)
		}
		roundCursor := p.cursor
		p.expectedLump = (p.expectedLump + 1) % p.maxLump
		if p.expectedLump == 0 {
			p.cursor++
		}
		return CmdAdvance, l, roundCursor, nil

	default:
		return 0, 0, 0, fmt.Errorf("pipe: unexpected token %q", tok)
	}
}

// Close closes both pipe file descriptors. Called once on the clean
// shutdown path ('Q' or EOF).
func (p *Protocol) Close() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

func (p *Protocol) writeByte(b byte) error {
	buf := [1]byte{b}
	n, err := unix.Write(p.writeFD, buf[:])
	if err != nil || n != 1 {
		return fmt.Errorf("pipe: short write on control channel (n=%d): %w", n, err)
	}
	return nil
}
