package blocker

import (
	"github.com/tempesta-tech/webshield/pkg/fingerprint"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// NewTFt builds the transport-fingerprint blocker: blocks by adding the
// client's TLS/TCP fingerprint hash to the accelerator's tft
// fingerprint file.
func NewTFt(config *fingerprint.Config, tempestaExecutablePath, tempestaConfigPath string) Blocker {
	return newFingerprintBlocker("tft", user.KeyTFt, config, tempestaExecutablePath, tempestaConfigPath, "tempesta-fw")
}
