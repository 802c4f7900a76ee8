package mdns

import (
	"net"
	"testing"

	"golang.org/x/net/dns/dnsmessage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/atvkit/device"
	"github.com/lanikai/atvkit/internal/discovery"
)

// buildResponse builds one DNS response message whose answer records are
// added by entries, mirroring internal/ice/mdns/client.go's sendResponse
// construction.
func buildResponse(t *testing.T, entries func(b *dnsmessage.Builder)) []byte {
	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{Response: true})
	b.EnableCompression()
	require.NoError(t, b.StartAnswers())
	entries(&b)
	msg, err := b.Finish()
	require.NoError(t, err)
	return msg
}

func mustName(t *testing.T, s string) dnsmessage.Name {
	n, err := dnsmessage.NewName(s)
	require.NoError(t, err)
	return n
}

func TestDiscoverMergesTwoServiceTypesOnSameHostIntoOneDevice(t *testing.T) {
	instances := make(map[string]*instance)

	// _mediaremotetv._tcp.local PTR -> living-room._mediaremotetv._tcp.local
	msg1 := buildResponse(t, func(b *dnsmessage.Builder) {
		require.NoError(t, b.PTRResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "_mediaremotetv._tcp.local."), Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.PTRResource{PTR: mustName(t, "living-room._mediaremotetv._tcp.local.")},
		))
		require.NoError(t, b.SRVResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "living-room._mediaremotetv._tcp.local."), Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.SRVResource{Port: 49152, Target: mustName(t, "livingroom.local.")},
		))
		require.NoError(t, b.TXTResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "living-room._mediaremotetv._tcp.local."), Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.TXTResource{TXT: []string{"deviceid=AA:BB:CC:DD:EE:FF", "name=Living Room"}},
		))
		var a dnsmessage.AResource
		copy(a.A[:], net.ParseIP("10.0.0.5").To4())
		require.NoError(t, b.AResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "livingroom.local."), Class: dnsmessage.ClassINET, TTL: 120},
			a,
		))
	})
	handleMessage(msg1, instances)

	// _touch-able._tcp.local PTR for the same physical device, same host.
	msg2 := buildResponse(t, func(b *dnsmessage.Builder) {
		require.NoError(t, b.PTRResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "_touch-able._tcp.local."), Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.PTRResource{PTR: mustName(t, "living-room._touch-able._tcp.local.")},
		))
		require.NoError(t, b.SRVResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "living-room._touch-able._tcp.local."), Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.SRVResource{Port: 3689, Target: mustName(t, "livingroom.local.")},
		))
		require.NoError(t, b.TXTResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "living-room._touch-able._tcp.local."), Class: dnsmessage.ClassINET, TTL: 120},
			dnsmessage.TXTResource{TXT: []string{"deviceid=11112222-3333-4444-5555-666677778888"}},
		))
		var a dnsmessage.AResource
		copy(a.A[:], net.ParseIP("10.0.0.5").To4())
		require.NoError(t, b.AResource(
			dnsmessage.ResourceHeader{Name: mustName(t, "livingroom.local."), Class: dnsmessage.ClassINET, TTL: 120},
			a,
		))
	})
	handleMessage(msg2, instances)

	registrations := []Registration{
		{ServiceType: "_mediaremotetv._tcp.local", Protocol: device.MRP},
		{ServiceType: "_touch-able._tcp.local", Protocol: device.DMAP},
	}
	records := recordsFromInstances(instances, registrations)
	require.Len(t, records, 2)

	configs := discovery.Merge(records)
	require.Len(t, configs, 1)

	var cfg *device.DeviceConfig
	for _, c := range configs {
		cfg = c
	}
	assert.Len(t, cfg.AllIdentifiers, 2)
	assert.True(t, cfg.HasIdentifier("AA:BB:CC:DD:EE:FF"))
	assert.True(t, cfg.HasIdentifier("11112222-3333-4444-5555-666677778888"))
	assert.True(t, cfg.Ready())
}

func TestParseTXTHandlesBareKeys(t *testing.T) {
	got := parseTXT([]string{"deviceid=AA:BB", "flag"})
	assert.Equal(t, "AA:BB", got["deviceid"])
	_, hasFlag := got["flag"]
	assert.True(t, hasFlag)
}
