package device

import (
	"strings"
	"time"
)

// Kind identifies the emulator (or phone) family behind a serial.
type Kind string

// Known kinds.
const (
	KindMuMu12   Kind = "MuMu12"
	KindMuMu     Kind = "MuMu"
	KindLDPlayer Kind = "LDPlayer"
	KindHuawei   Kind = "HUAWEI"
	KindSamsung  Kind = "Samsung"
	KindXiaomi   Kind = "Xiaomi"
	KindUnknown  Kind = "Unknown"
)

// Emulator is an inventory record for one adb serial.
type Emulator struct {
	Serial   string    `json:"serial"`
	Model    string    `json:"model"`
	Brand    string    `json:"brand"`
	Name     string    `json:"name"`
	Android  string    `json:"android"`
	Kind     Kind      `json:"kind"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// Props are the getprop values used to identify a device.
type Props struct {
	Model        string
	Brand        string
	Manufacturer string
	Name         string
	Android      string
}

// Identify maps device properties to a Kind. MuMu 12 is checked before the
// generic MuMu match.
func Identify(p Props) Kind {
	has := func(needle string, fields ...string) bool {
		for _, f := range fields {
			if strings.Contains(f, needle) {
				return true
			}
		}
		return false
	}

	switch {
	case has("MuMu12", p.Model, p.Brand):
		return KindMuMu12
	case has("MuMu", p.Model, p.Brand, p.Manufacturer):
		return KindMuMu
	case has("LDPlayer", p.Model, p.Brand, p.Manufacturer):
		return KindLDPlayer
	case has("HUAWEI", p.Model, p.Brand):
		return KindHuawei
	case has("Samsung", p.Model, p.Brand), has("samsung", p.Brand):
		return KindSamsung
	case has("Xiaomi", p.Model, p.Brand):
		return KindXiaomi
	default:
		return KindUnknown
	}
}

// DisplayName is a short human label, e.g. "MuMu12 (127.0.0.1:16384)".
func (e Emulator) DisplayName() string {
	return string(e.Kind) + " (" + e.Serial + ")"
}
