// Package serialprovider defines the narrow interface the Login handshake
// uses to obtain this device's serial number. The spec scopes actual
// acquisition (reading a MAC address, asking a remote issuer) out of the
// core; this package only models the contract and a trivial static
// implementation for tests and simple deployments.
//
// Grounded on original_source/src/core/serial.h.
package serialprovider

// Result classifies why serial acquisition did not succeed, mirroring
// enum SERIAL_RETURN: FAIL_TEMP is worth retrying later, FAIL_PERM is
// not, FAIL_NET means the failure came from the network round trip a
// remote issuer may require.
type Result int

const (
	Success Result = iota
	FailTemp
	FailNet
	FailPerm
)

// Provider supplies the device's serial number.
type Provider interface {
	GetSerial() (uint32, Result)
}

// StaticProvider always returns the same, pre-issued serial.
type StaticProvider struct {
	Serial uint32
}

func (p StaticProvider) GetSerial() (uint32, Result) {
	return p.Serial, Success
}
