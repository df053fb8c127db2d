//go:build novisa

package main

import (
	"errors"

	"github.com/dex-sp/instruments"
)

// Built without NI-VISA, only the prologix driver is available.
func openVISA() (instruments.Dialer, error) {
	return nil, errors.New("built without VISA support (novisa tag), use --driver prologix")
}

func closeVISA() {}
