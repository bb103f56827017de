package ctl

import (
	"errors"

	"github.com/atotto/clipboard"
)

// SystemClipboard writes to the desktop clipboard through xclip, xsel,
// wl-copy, pbcopy or the Windows API, whichever is present.
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return errors.New("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}
