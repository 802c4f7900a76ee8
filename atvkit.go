// Copyright (c) 2019 Lanikai Labs. All rights reserved.

// Package atvkit discovers Apple TV devices on the local network and
// composes their per-protocol capabilities behind a single device facade
// (spec.md §4.J). It is the public entry point; internal packages implement
// the individual protocols (mrp, internal/daap/internal/dmap) and discovery
// (internal/mdns, internal/discovery).
package atvkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/discovery"
	"github.com/lanikai/atvkit/internal/logging"
	"github.com/lanikai/atvkit/internal/mdns"
)

var log = logging.DefaultLogger.WithTag(logging.TagFacade)

// Capability is one interface surface a protocol implementation may provide
// (spec.md §4.J).
type Capability int

const (
	CapabilityRemoteControl Capability = iota
	CapabilityMetadata
	CapabilityPower
	CapabilityAudioStream
	CapabilityPushUpdates
)

func (c Capability) String() string {
	switch c {
	case CapabilityRemoteControl:
		return "remote_control"
	case CapabilityMetadata:
		return "metadata"
	case CapabilityPower:
		return "power"
	case CapabilityAudioStream:
		return "audio_stream"
	case CapabilityPushUpdates:
		return "push_updates"
	default:
		return "unknown"
	}
}

// protocolPriority is the fixed precedence a capability is routed by when
// more than one registered protocol provides it (spec.md §4.J).
var protocolPriority = []device.ProtocolKind{
	device.MRP,
	device.Companion,
	device.DMAP,
	device.AirPlay,
	device.RAOP,
}

// NotSupportedError indicates the facade has no registered protocol
// providing a requested capability (spec.md §7).
type NotSupportedError struct {
	Capability Capability
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("atvkit: no protocol provides capability %s", e.Capability)
}

// SetupData is what a protocol's Setup contributes to the facade: a connect
// action, a close action, and the capabilities it provides once connected
// (spec.md §4.J).
type SetupData struct {
	Protocol     device.ProtocolKind
	Connect      func(ctx context.Context) error
	Close        func() error
	Capabilities map[Capability]struct{}
}

func capabilitySet(caps ...Capability) map[Capability]struct{} {
	out := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		out[c] = struct{}{}
	}
	return out
}

// PairingHandler drives a pairing handshake to completion once the caller
// has obtained a PIN out of band (displayed on the Apple TV's screen), per
// spec.md §6's `pair(config, protocol) -> pairing-handler`.
type PairingHandler interface {
	// Finish completes the handshake and returns a serialized credentials
	// string suitable for later use as a Connect credential.
	Finish(ctx context.Context, pin string) (string, error)
}

// ProtocolImplementation is the per-protocol registry entry (spec.md §9's
// "protocol implementation registry" design note): its mdns registrations,
// a device-info extractor, and Setup/Pair operations. MRP and DMAP register
// full implementations; AirPlay, Companion, and RAOP register
// discovery-metadata-only implementations whose Setup/Pair return
// NotSupportedError, since their wire-level handlers are an explicit
// non-goal (spec.md §1).
type ProtocolImplementation interface {
	Registrations() []mdns.Registration
	DeviceInfo(cfg *device.DeviceConfig) map[string]string
	Setup(ctx context.Context, cfg *device.DeviceConfig, sm *SessionManager, credential string) (SetupData, error)
	Pair(cfg *device.DeviceConfig) (PairingHandler, error)
}

var registry = map[device.ProtocolKind]ProtocolImplementation{
	device.MRP:       mrpProtocol{},
	device.DMAP:      dmapProtocol{},
	device.Companion: companionProtocol{},
	device.AirPlay:   airplayProtocol{},
	device.RAOP:      raopProtocol{},
}

func registrations() []mdns.Registration {
	var out []mdns.Registration
	for _, impl := range registry {
		out = append(out, impl.Registrations()...)
	}
	return out
}

// SessionManager owns the cancellation signal shared by every protocol
// session a Device composes (spec.md §5's "background task holding a
// shared reference to the session manager"). It is referenced, not owned,
// by the closures a protocol's Setup hands back in SetupData.
type SessionManager struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newSessionManager(parent context.Context) *SessionManager {
	ctx, cancel := context.WithCancel(parent)
	return &SessionManager{ctx: ctx, cancel: cancel}
}

// Context returns the manager's cancellation-bound context.
func (sm *SessionManager) Context() context.Context { return sm.ctx }

// Close cancels every operation still holding a reference to this manager.
func (sm *SessionManager) Close() { sm.cancel() }

// Device is the facade composed from one or more connected protocol
// sessions (spec.md §4.J).
type Device struct {
	config *device.DeviceConfig
	sm     *SessionManager

	mu      sync.Mutex
	entries []SetupData
	routes  map[Capability]device.ProtocolKind
}

// Config returns the aggregated device configuration this Device was
// connected from.
func (d *Device) Config() *device.DeviceConfig { return d.config }

// HasCapability reports whether any connected protocol provides cap.
func (d *Device) HasCapability(cap Capability) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.routes[cap]
	return ok
}

// Protocol returns which protocol a capability is routed to, per the
// MRP > Companion > DMAP > AirPlay > RAOP priority order (spec.md §4.J).
func (d *Device) Protocol(cap Capability) (device.ProtocolKind, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind, ok := d.routes[cap]
	if !ok {
		return 0, &NotSupportedError{Capability: cap}
	}
	return kind, nil
}

// Close invokes every registered close action in reverse registration
// order, then releases the session manager (spec.md §4.J).
func (d *Device) Close() error {
	d.mu.Lock()
	entries := d.entries
	d.mu.Unlock()

	var firstErr error
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Close == nil {
			continue
		}
		if err := entries[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.sm.Close()
	return firstErr
}

// Credential supplies a protocol-specific credential (MRP Credentials
// string, DAAP login-id) to Connect, keyed by protocol kind.
type Credential struct {
	Protocol device.ProtocolKind
	Value    string
}

// Connect builds protocol sessions for every service the device config
// advertises, then invokes each one's connect action, per spec.md §4.J and
// the public `connect(config) -> device` surface (spec.md §6). The first
// setup or connect failure closes the session manager and aborts — no
// partial-connect is exposed (spec.md §7).
//
// Protocols whose implementation is discovery-metadata-only (AirPlay,
// Companion, RAOP) return NotSupportedError from Setup; Connect treats that
// as "this protocol does not participate" rather than a fatal error, since
// those services are present on nearly every Apple TV regardless of which
// protocols the caller actually wants to use.
func Connect(ctx context.Context, cfg *device.DeviceConfig, creds ...Credential) (*Device, error) {
	credentialFor := make(map[device.ProtocolKind]string, len(creds))
	for _, c := range creds {
		credentialFor[c.Protocol] = c.Value
	}

	sm := newSessionManager(ctx)
	d := &Device{config: cfg, sm: sm, routes: map[Capability]device.ProtocolKind{}}

	for _, kind := range protocolPriority {
		if _, ok := cfg.ByProtocol(kind); !ok {
			continue
		}
		impl, ok := registry[kind]
		if !ok {
			continue
		}

		data, err := impl.Setup(ctx, cfg, sm, credentialFor[kind])
		if err != nil {
			var notSupported *NotSupportedError
			if errors.As(err, &notSupported) {
				continue
			}
			sm.Close()
			return nil, errors.Wrapf(err, "atvkit: %s setup", kind)
		}

		d.entries = append(d.entries, data)
		for cap := range data.Capabilities {
			if _, routed := d.routes[cap]; !routed {
				d.routes[cap] = kind
			}
		}
	}

	for _, entry := range d.entries {
		if entry.Connect == nil {
			continue
		}
		if err := entry.Connect(ctx); err != nil {
			d.Close()
			return nil, errors.Wrapf(err, "atvkit: %s connect", entry.Protocol)
		}
	}

	log.Debug("connect: %s ready with %d protocol session(s)", cfg.Name(), len(d.entries))
	return d, nil
}

// Scan discovers Apple TV devices on the network and returns the device
// configs matching the given filters, per spec.md §6's
// `scan(timeout, identifier?, protocol?, hosts?)`. When hosts is non-empty,
// unicast queries are sent directly to each host instead of joining the
// multicast group (spec.md §4.H).
func Scan(ctx context.Context, timeout time.Duration, identifier string, protocol *device.ProtocolKind, hosts []string) ([]*device.DeviceConfig, error) {
	var configs map[string]*device.DeviceConfig
	var err error

	if len(hosts) > 0 {
		configs, err = mdns.DiscoverUnicast(ctx, timeout, hosts, registrations())
	} else {
		configs, err = mdns.Discover(ctx, timeout, registrations())
	}
	if err != nil {
		return nil, errors.Wrap(err, "atvkit: scan")
	}

	return discovery.Filter(configs, identifier, protocol, hosts), nil
}

// Pair starts a pairing handshake for the given protocol against a device
// config's service record, returning a handler the caller drives to
// completion once it has obtained a PIN out of band (spec.md §6).
func Pair(cfg *device.DeviceConfig, protocol device.ProtocolKind) (PairingHandler, error) {
	impl, ok := registry[protocol]
	if !ok {
		return nil, &NotSupportedError{Capability: CapabilityRemoteControl}
	}
	if _, ok := cfg.ByProtocol(protocol); !ok {
		return nil, &device.NoServiceError{Protocol: protocol}
	}
	return impl.Pair(cfg)
}
