package vecgym

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured worker error: which operation failed, which
// lump/cpu/bunch slot it failed on, and (when the failure traces back
// to a syscall) the kernel errno behind it.
type Error struct {
	Op    string    // operation that failed (e.g. "advance", "publish-initial")
	Lump  int       // lump index (-1 if not applicable)
	CPU   int       // cpu index (-1 if not applicable)
	Bunch int       // bunch index (-1 if not applicable)
	Code  ErrorCode // high-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Lump >= 0 {
		parts = append(parts, fmt.Sprintf("lump=%d", e.Lump))
	}
	if e.CPU >= 0 {
		parts = append(parts, fmt.Sprintf("cpu=%d", e.CPU))
	}
	if e.Bunch >= 0 {
		parts = append(parts, fmt.Sprintf("bunch=%d", e.Bunch))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("vecgym: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("vecgym: %s", msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a high-level error category.
type ErrorCode string

const (
	ErrCodeBadArgs          ErrorCode = "invalid arguments"
	ErrCodeProtocol         ErrorCode = "protocol desync"
	ErrCodeROMLoad          ErrorCode = "rom failed to load"
	ErrCodeScreenMismatch   ErrorCode = "screen dimensions mismatch"
	ErrCodeActionOutOfRange ErrorCode = "action index out of range"
	ErrCodeMapFailure       ErrorCode = "shared memory map failure"
	ErrCodeIOError          ErrorCode = "I/O error"
	ErrCodeEmulator         ErrorCode = "emulator error"
)

// NewError creates an op-scoped error with no lump/cpu/bunch context.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Lump: -1, CPU: -1, Bunch: -1, Code: code, Msg: msg}
}

// NewSlotError creates an error scoped to one fleet slot.
func NewSlotError(op string, lump, cpu, bunch int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Lump: lump, CPU: cpu, Bunch: bunch, Code: code, Msg: msg}
}

// WrapError wraps inner with worker context, preserving slot scope and
// errno when inner already carries them.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ve, ok := inner.(*Error); ok {
		return &Error{
			Op: op, Lump: ve.Lump, CPU: ve.CPU, Bunch: ve.Bunch,
			Code: ve.Code, Errno: ve.Errno, Msg: ve.Msg, Inner: ve.Inner,
		}
	}

	code := ErrCodeIOError
	if errno, ok := inner.(syscall.Errno); ok {
		code = mapErrnoToCode(errno)
		return &Error{Op: op, Lump: -1, CPU: -1, Bunch: -1, Code: code, Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Lump: -1, CPU: -1, Bunch: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeBadArgs
	case syscall.ENOMEM:
		return ErrCodeMapFailure
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err (or something it wraps) is a *Error with
// the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno reports whether err (or something it wraps) is a *Error
// carrying the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}
