package atvkit

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/daap"
	"github.com/lanikai/atvkit/internal/mdns"
)

// daapTimeout bounds every individual DAAP round trip the facade drives,
// matching the fixed per-request timeout internal/daap's retry policy
// expects to be supplied by its caller.
const daapTimeout = 10 * time.Second

// dmapProtocol is the DMAP/DAAP registry entry: session-aware HTTP
// requester over internal/daap, registered under "_touch-able._tcp.local"
// and "_appletv-v2._tcp.local" (spec.md §6).
type dmapProtocol struct{}

// Two service types advertise DMAP support across firmware generations
// (spec.md §6); either is enough to identify a DMAP-capable device.
func (dmapProtocol) Registrations() []mdns.Registration {
	return []mdns.Registration{
		{ServiceType: "_touch-able._tcp.local", Protocol: device.DMAP},
		{ServiceType: "_appletv-v2._tcp.local", Protocol: device.DMAP},
	}
}

func (dmapProtocol) DeviceInfo(cfg *device.DeviceConfig) map[string]string {
	rec, ok := cfg.ByProtocol(device.DMAP)
	if !ok {
		return nil
	}
	return map[string]string{"name": cfg.Name(), "identifier": rec.Identifier}
}

// Pair is not supported: DMAP login-ids are obtained through the legacy
// DMAP pair-pin handshake, a raw-socket protocol distinct from MRP/HAP
// pairing and not covered by any component this spec names (spec.md §1
// scopes only the MRP pair/verify state machine). Callers obtain a login-id
// out of band and supply it as a Credential to Connect.
func (dmapProtocol) Pair(cfg *device.DeviceConfig) (PairingHandler, error) {
	return nil, &NotSupportedError{Capability: CapabilityRemoteControl}
}

func (dmapProtocol) Setup(ctx context.Context, cfg *device.DeviceConfig, sm *SessionManager, credential string) (SetupData, error) {
	rec, ok := cfg.ByProtocol(device.DMAP)
	if !ok {
		return SetupData{}, &device.NoServiceError{Protocol: device.DMAP}
	}
	if credential == "" {
		return SetupData{}, &daap.InvalidCredentialsError{}
	}

	baseURL := "http://" + net.JoinHostPort(rec.Host, strconv.Itoa(int(rec.Port)))
	client := daap.NewClient(baseURL, credential)

	return SetupData{
		Protocol: device.DMAP,
		Connect: func(ctx context.Context) error {
			return client.Connect(ctx, daapTimeout)
		},
		Close: func() error { return nil },
		Capabilities: capabilitySet(
			CapabilityRemoteControl,
			CapabilityMetadata,
		),
	}, nil
}
