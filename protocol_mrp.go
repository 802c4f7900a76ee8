package atvkit

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/mdns"
	"github.com/lanikai/atvkit/internal/mrptransport"
	"github.com/lanikai/atvkit/mrp"
)

// mrpProtocol is the MediaRemote registry entry: full pair-setup/pair-verify
// support over internal/mrptransport, routed at the top of the capability
// priority order (spec.md §4.J).
type mrpProtocol struct{}

func (mrpProtocol) Registrations() []mdns.Registration {
	return []mdns.Registration{{ServiceType: "_mediaremotetv._tcp.local", Protocol: device.MRP}}
}

func (mrpProtocol) DeviceInfo(cfg *device.DeviceConfig) map[string]string {
	rec, ok := cfg.ByProtocol(device.MRP)
	if !ok {
		return nil
	}
	info := map[string]string{"name": cfg.Name(), "identifier": rec.Identifier}
	if v, ok := rec.Get("systemBuildVersion"); ok {
		info["systemBuildVersion"] = v
	}
	return info
}

func (mrpProtocol) Pair(cfg *device.DeviceConfig) (PairingHandler, error) {
	rec, ok := cfg.ByProtocol(device.MRP)
	if !ok {
		return nil, &device.NoServiceError{Protocol: device.MRP}
	}
	ex := mrptransport.NewHTTPExchanger(endpoint(rec, "/pair-setup"))
	return &mrpPairingHandler{ex: ex}, nil
}

// mrpPairingHandler drives mrp.PairSetup once the caller supplies the PIN
// displayed on the Apple TV, per spec.md §6.
type mrpPairingHandler struct {
	ex mrp.Exchanger
}

func (h *mrpPairingHandler) Finish(ctx context.Context, pin string) (string, error) {
	creds, err := mrp.PairSetup(ctx, h.ex, pin)
	if err != nil {
		return "", err
	}
	return creds.String(), nil
}

func (mrpProtocol) Setup(ctx context.Context, cfg *device.DeviceConfig, sm *SessionManager, credential string) (SetupData, error) {
	rec, ok := cfg.ByProtocol(device.MRP)
	if !ok {
		return SetupData{}, &device.NoServiceError{Protocol: device.MRP}
	}
	if credential == "" {
		return SetupData{}, errors.New("atvkit: MRP setup requires credentials from a completed pairing")
	}
	creds, err := mrp.ParseCredentials(credential)
	if err != nil {
		return SetupData{}, err
	}

	session := &mrpSession{
		ex:    mrptransport.NewHTTPExchanger(endpoint(rec, "/pair-verify")),
		creds: creds,
	}

	return SetupData{
		Protocol: device.MRP,
		Connect:  session.connect,
		Close:    session.close,
		Capabilities: capabilitySet(
			CapabilityRemoteControl,
			CapabilityMetadata,
			CapabilityPower,
			CapabilityPushUpdates,
		),
	}, nil
}

// mrpSession holds the session keys produced by a successful pair-verify
// for the lifetime of one Device connection (spec.md §4.E terminal state
// AUTHENTICATED).
type mrpSession struct {
	ex    mrp.Exchanger
	creds mrp.Credentials
	keys  mrp.SessionKeys
}

func (s *mrpSession) connect(ctx context.Context) error {
	keys, err := mrp.PairVerify(ctx, s.ex, s.creds)
	if err != nil {
		return err
	}
	s.keys = keys
	log.Debug("mrp: session established for atv_id=%x", s.creds.AtvID)
	return nil
}

func (s *mrpSession) close() error { return nil }

func endpoint(r device.ServiceRecord, path string) string {
	return "http://" + net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port))) + path
}
