package atvkit

import (
	"context"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/mdns"
)

// companionProtocol, airplayProtocol, and raopProtocol are
// discovery-metadata-only registry entries (spec.md §9, SPEC_FULL.md §4.K):
// their service types and DeviceInfo extraction participate in scanning and
// aggregation, but their wire-level handlers are an explicit non-goal
// (spec.md §1), so Setup and Pair both report NotSupportedError.

type companionProtocol struct{}

func (companionProtocol) Registrations() []mdns.Registration {
	return []mdns.Registration{{ServiceType: "_companion-link._tcp.local", Protocol: device.Companion}}
}

func (companionProtocol) DeviceInfo(cfg *device.DeviceConfig) map[string]string {
	return discoveryOnlyInfo(cfg, device.Companion)
}

func (companionProtocol) Setup(context.Context, *device.DeviceConfig, *SessionManager, string) (SetupData, error) {
	return SetupData{}, &NotSupportedError{Capability: CapabilityRemoteControl}
}

func (companionProtocol) Pair(*device.DeviceConfig) (PairingHandler, error) {
	return nil, &NotSupportedError{Capability: CapabilityRemoteControl}
}

type airplayProtocol struct{}

func (airplayProtocol) Registrations() []mdns.Registration {
	return []mdns.Registration{{ServiceType: "_airplay._tcp.local", Protocol: device.AirPlay}}
}

func (airplayProtocol) DeviceInfo(cfg *device.DeviceConfig) map[string]string {
	return discoveryOnlyInfo(cfg, device.AirPlay)
}

func (airplayProtocol) Setup(context.Context, *device.DeviceConfig, *SessionManager, string) (SetupData, error) {
	return SetupData{}, &NotSupportedError{Capability: CapabilityAudioStream}
}

func (airplayProtocol) Pair(*device.DeviceConfig) (PairingHandler, error) {
	return nil, &NotSupportedError{Capability: CapabilityAudioStream}
}

type raopProtocol struct{}

func (raopProtocol) Registrations() []mdns.Registration {
	return []mdns.Registration{{ServiceType: "_raop._tcp.local", Protocol: device.RAOP}}
}

func (raopProtocol) DeviceInfo(cfg *device.DeviceConfig) map[string]string {
	return discoveryOnlyInfo(cfg, device.RAOP)
}

func (raopProtocol) Setup(context.Context, *device.DeviceConfig, *SessionManager, string) (SetupData, error) {
	return SetupData{}, &NotSupportedError{Capability: CapabilityAudioStream}
}

func (raopProtocol) Pair(*device.DeviceConfig) (PairingHandler, error) {
	return nil, &NotSupportedError{Capability: CapabilityAudioStream}
}

func discoveryOnlyInfo(cfg *device.DeviceConfig, kind device.ProtocolKind) map[string]string {
	rec, ok := cfg.ByProtocol(kind)
	if !ok {
		return nil
	}
	return map[string]string{"name": cfg.Name(), "identifier": rec.Identifier}
}
