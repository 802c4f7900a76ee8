// Package mrptransport implements mrp.Exchanger over HTTP, the wire
// transport MediaRemote pairing shares with HomeKit accessory pairing: one
// TLV8-encoded POST per handshake step. Grounded on internal/daap/daap.go's
// http.Client usage and the TLV8-over-HTTP shape documented by
// other_examples/91b5d514_boundless-engineering-hap__pair-setup.go.go.
package mrptransport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/tlv"
)

// pairingContentType is the MIME type HAP-family pairing endpoints expect
// for TLV8 request/response bodies.
const pairingContentType = "application/pairing+tlv8"

// HTTPExchanger sends one TLV8 message per round trip to a fixed device
// endpoint, implementing mrp.Exchanger.
type HTTPExchanger struct {
	client *http.Client
	url    string
}

// NewHTTPExchanger targets the given absolute URL (e.g.
// "http://192.168.1.20:7000/pair-setup").
func NewHTTPExchanger(url string) *HTTPExchanger {
	return &HTTPExchanger{client: &http.Client{}, url: url}
}

// Exchange implements mrp.Exchanger.
func (e *HTTPExchanger) Exchange(ctx context.Context, outgoing map[byte][]byte) (map[byte][]byte, error) {
	body := tlv.Encode(outgoing)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "mrptransport: building request")
	}
	req.Header.Set("Content-Type", pairingContentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "mrptransport: request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "mrptransport: reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("mrptransport: unexpected status %d", resp.StatusCode)
	}

	return tlv.Decode(respBody)
}
