// Package keymap translates logical key identifiers into the exact byte
// sequences a terminal emits for those keypresses.
//
// Remote devices send logical keys ("up", "f5", "ctrl_c") plus a modifier
// bitmask instead of raw bytes, because the device cannot know which escape
// sequences the host terminal expects. The mapping here is fixed and must be
// reproduced byte-for-byte by clients that encode locally: the modifier
// parameter embedded in a sequence is always 1 + bitmask with Shift=1,
// Alt=2, Ctrl=4.
package keymap

import (
	"strconv"
)

// Modifier bits. The wire parameter for a modified sequence is 1 + the
// OR of these values.
const (
	ModShift = 1
	ModAlt   = 2
	ModCtrl  = 4
)

const esc = 0x1b

// baseSequences maps logical key identifiers to the unmodified byte
// sequence for that key. Three families appear here:
//   - single control bytes (tab, enter, ctrl_c, ...)
//   - SS3 sequences ESC O <final> (F1-F4)
//   - CSI sequences ESC [ ... <final> (arrows, navigation, F5-F12)
var baseSequences = map[string][]byte{
	"up":    {esc, '[', 'A'},
	"down":  {esc, '[', 'B'},
	"right": {esc, '[', 'C'},
	"left":  {esc, '[', 'D'},

	"home": {esc, '[', 'H'},
	"end":  {esc, '[', 'F'},

	"insert":   {esc, '[', '2', '~'},
	"delete":   {esc, '[', '3', '~'},
	"pageup":   {esc, '[', '5', '~'},
	"pagedown": {esc, '[', '6', '~'},

	"f1": {esc, 'O', 'P'},
	"f2": {esc, 'O', 'Q'},
	"f3": {esc, 'O', 'R'},
	"f4": {esc, 'O', 'S'},

	"f5":  {esc, '[', '1', '5', '~'},
	"f6":  {esc, '[', '1', '7', '~'},
	"f7":  {esc, '[', '1', '8', '~'},
	"f8":  {esc, '[', '1', '9', '~'},
	"f9":  {esc, '[', '2', '0', '~'},
	"f10": {esc, '[', '2', '1', '~'},
	"f11": {esc, '[', '2', '3', '~'},
	"f12": {esc, '[', '2', '4', '~'},

	"tab":       {0x09},
	"enter":     {0x0d},
	"escape":    {esc},
	"backspace": {0x7f},

	"ctrl_c": {0x03},
	"ctrl_d": {0x04},
	"ctrl_z": {0x1a},
}

// controlKeys are keys that already encode a control character. They are
// returned unmodified regardless of requested modifiers: there is no
// modified-variant encoding for them.
var controlKeys = map[string]bool{
	"ctrl_c": true,
	"ctrl_d": true,
	"ctrl_z": true,
}

// backtab is the hard-coded Shift+Tab sequence. It does not follow the
// general modifier algorithm.
var backtab = []byte{esc, '[', 'Z'}

// Encode returns the byte sequence for a logical key with the given
// modifier bitmask. Unknown keys return an empty slice; callers must treat
// that as a no-op, not an error.
func Encode(key string, modifiers int) []byte {
	base, ok := baseSequences[key]
	if !ok {
		return nil
	}

	if controlKeys[key] {
		return clone(base)
	}

	if key == "tab" && modifiers&ModShift != 0 {
		return clone(backtab)
	}

	if modifiers == 0 {
		return clone(base)
	}

	param := strconv.Itoa(1 + modifiers)

	// SS3 family (ESC O <final>): modified variants switch to the CSI
	// form ESC [ 1 ; <param> <final>.
	if len(base) == 3 && base[1] == 'O' {
		out := []byte{esc, '[', '1', ';'}
		out = append(out, param...)
		out = append(out, base[2])
		return out
	}

	// CSI family (ESC [ ... <final>).
	if len(base) >= 3 && base[1] == '[' {
		final := base[len(base)-1]
		middle := base[2 : len(base)-1]

		out := []byte{esc, '['}
		if len(middle) > 0 {
			// Sequence carries a numeric parameter (e.g. PageUp):
			// insert ;<param> before the final byte.
			out = append(out, middle...)
			out = append(out, ';')
		} else {
			// No parameter (e.g. arrows): insert 1;<param>.
			out = append(out, '1', ';')
		}
		out = append(out, param...)
		out = append(out, final)
		return out
	}

	// Single-byte keys have no modified encoding; send the base byte.
	return clone(base)
}

// Known reports whether the key identifier is part of the encoding table.
func Known(key string) bool {
	_, ok := baseSequences[key]
	return ok
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
