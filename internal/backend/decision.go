// Package backend selects, once per process, where credential material is
// physically stored, and exposes the chosen store behind a single interface.
package backend

import (
	"runtime"
	"sync"

	"github.com/benaskins/credvault/internal/keychain"
)

// desktopWithoutEnclave lists platforms that never route to a hardware store,
// whatever the binding reports.
var desktopWithoutEnclave = map[string]bool{
	"linux":     true,
	"windows":   true,
	"freebsd":   true,
	"openbsd":   true,
	"netbsd":    true,
	"dragonfly": true,
	"plan9":     true,
	"js":        true,
	"wasip1":    true,
}

// Platform is the capability input to Decide.
type Platform struct {
	GOOS         string           // defaults to runtime.GOOS
	ForceDisable bool             // configuration or environment override
	Hardware     keychain.Binding // nil when the binding did not load
}

// Decision is the immutable backend choice for a process.
type Decision struct {
	UseHardwareStore bool   `json:"use_hardware_store"`
	Reason           string `json:"reason"`
}

// Kind returns the backend kind the decision selects.
func (d Decision) Kind() Kind {
	if d.UseHardwareStore {
		return Hardware
	}
	return Fallback
}

// Decide evaluates the platform. Anything short of a loaded, available binding
// on a supported platform selects the fallback store.
func Decide(p Platform) Decision {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	switch {
	case p.ForceDisable:
		return Decision{Reason: "hardware store disabled by configuration"}
	case desktopWithoutEnclave[goos]:
		return Decision{Reason: "no hardware store on " + goos}
	case p.Hardware == nil:
		return Decision{Reason: "hardware store binding not loaded"}
	case !p.Hardware.Available():
		return Decision{Reason: "hardware store availability check failed"}
	}
	return Decision{UseHardwareStore: true, Reason: "hardware store available on " + goos}
}

var (
	currentOnce sync.Once
	current     Decision
)

// Current returns the process-wide decision, computing it from the first
// platform it is called with. Later calls ignore their argument.
func Current(p Platform) Decision {
	currentOnce.Do(func() {
		current = Decide(p)
	})
	return current
}
