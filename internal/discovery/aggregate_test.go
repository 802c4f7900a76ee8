package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/atvkit/device"
)

func TestMergeUnionsIdentifiersForOverlappingRecords(t *testing.T) {
	records := []device.ServiceRecord{
		{Protocol: device.MRP, Host: "10.0.0.5", Identifier: "AA:BB:CC:DD:EE:FF"},
		{Protocol: device.DMAP, Host: "10.0.0.5", Identifier: "11112222-3333-4444-5555-666677778888"},
	}
	records[0].Properties = map[string]string{"atv_id": "11112222-3333-4444-5555-666677778888"}

	configs := Merge(records)
	require.Len(t, configs, 1)

	var cfg *device.DeviceConfig
	for _, c := range configs {
		cfg = c
	}
	assert.Len(t, cfg.AllIdentifiers, 2)
	assert.True(t, cfg.HasIdentifier("aa:bb:cc:dd:ee:ff"))
	assert.True(t, cfg.HasIdentifier("11112222-3333-4444-5555-666677778888"))
}

func TestMergeKeepsUnrelatedDevicesSeparate(t *testing.T) {
	records := []device.ServiceRecord{
		{Protocol: device.MRP, Host: "10.0.0.5", Identifier: "device-a"},
		{Protocol: device.MRP, Host: "10.0.0.9", Identifier: "device-b"},
	}
	configs := Merge(records)
	assert.Len(t, configs, 2)
}

func TestFilterByIdentifierOnlyReturnsMatchingConfigs(t *testing.T) {
	records := []device.ServiceRecord{
		{Protocol: device.MRP, Host: "10.0.0.5", Identifier: "device-a"},
		{Protocol: device.MRP, Host: "10.0.0.9", Identifier: "device-b"},
	}
	configs := Merge(records)

	filtered := Filter(configs, "device-a", nil, nil)
	require.Len(t, filtered, 1)
	assert.True(t, filtered[0].HasIdentifier("device-a"))
}

func TestFilterExcludesConfigsWithoutIdentifier(t *testing.T) {
	records := []device.ServiceRecord{
		{Protocol: device.AirPlay, Host: "10.0.0.5", Identifier: ""},
	}
	configs := Merge(records)
	assert.Empty(t, Filter(configs, "", nil, nil))
}
