//go:build !novisa

package main

import (
	vi "github.com/jpoirier/visa"

	"github.com/dex-sp/instruments"
	"github.com/dex-sp/instruments/visa"
)

var resourceManager *vi.Session

func openVISA() (instruments.Dialer, error) {
	rm, err := visa.GetResourceManager()
	if err != nil {
		return nil, err
	}
	resourceManager = &rm
	return visa.Dialer{ResourceManager: resourceManager}, nil
}

func closeVISA() {
	if resourceManager != nil {
		resourceManager.Close()
		resourceManager = nil
	}
}
