package blocker

import (
	"github.com/tempesta-tech/webshield/pkg/fingerprint"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// NewTFh builds the HTTP-fingerprint blocker: blocks by adding the
// client's HTTP fingerprint hash to the accelerator's tfh fingerprint
// file. Shares the tft reload unit since both files are read by the
// same accelerator process.
func NewTFh(config *fingerprint.Config, tempestaExecutablePath, tempestaConfigPath string) Blocker {
	return newFingerprintBlocker("tfh", user.KeyTFh, config, tempestaExecutablePath, tempestaConfigPath, "tempesta-fw")
}
