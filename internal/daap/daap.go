// Package daap implements the session-aware DAAP/DMAP HTTP client used to
// talk to a DMAP-protocol Apple TV (spec.md §4.G): login, implicit
// re-login on session expiry, and a small media-state projection. Grounded
// on internal/media/rtsp/client.go's shape (a mutex-guarded Client wrapping
// one transport connection, with typed request-failure errors), adapted
// from raw RTSP-over-TCP to DAAP-over-HTTP with an added re-login/retry
// policy the RTSP client doesn't need.
package daap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/dmap"
	"github.com/lanikai/atvkit/internal/logging"
)

var log = logging.DefaultLogger.WithTag(logging.TagDAAP)

var (
	pairingGUIDPattern = regexp.MustCompile(`^0x[0-9A-Fa-f]{16}$`)
	uuidPattern        = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
)

// fixedHeaders are sent with every DAAP request (spec.md §6).
var fixedHeaders = map[string]string{
	"Accept":                        "*/*",
	"Accept-Encoding":               "gzip",
	"Client-DAAP-Version":           "3.13",
	"Client-ATV-Sharing-Version":    "1.2",
	"Client-iTunes-Sharing-Version": "3.15",
	"User-Agent":                    "Remote/1021",
	"Viewer-Only-Client":            "1",
}

// InvalidCredentialsError indicates a login-id is neither a pairing GUID
// nor a dashed UUID (spec.md §7).
type InvalidCredentialsError struct {
	loginID string
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("daap: invalid login id %q", e.loginID)
}

// AuthenticationError indicates the re-login/retry policy was exhausted
// (spec.md §7).
type AuthenticationError struct {
	status int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("daap: request failed after re-login (status %d)", e.status)
}

// Client is one DAAP session: an HTTP client plus login-id/session-id state
// (spec.md §3 "DAAP session").
type Client struct {
	httpClient *http.Client
	baseURL    string
	loginID    string
	sessionID  uint32 // 0 means "not logged in"

	mu sync.Mutex
}

// NewClient constructs a Client targeting baseURL (e.g.
// "http://192.168.1.20:3689/") using loginID for authentication. The
// login-id format is validated lazily, on first login, per spec.md §4.G.
func NewClient(baseURL, loginID string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		loginID:    loginID,
	}
}

// loginParam returns the URL parameter identifying this client to the
// server, chosen by the login-id's form.
func (c *Client) loginParam() (string, error) {
	switch {
	case pairingGUIDPattern.MatchString(c.loginID):
		return "pairing-guid=" + c.loginID, nil
	case uuidPattern.MatchString(c.loginID):
		return "hsgid=" + c.loginID, nil
	default:
		return "", &InvalidCredentialsError{loginID: c.loginID}
	}
}

// login issues the DAAP login request and stores the resulting session id.
// Caller must hold c.mu.
func (c *Client) login(ctx context.Context, timeout time.Duration) error {
	param, err := c.loginParam()
	if err != nil {
		return err
	}

	body, status, err := c.do(ctx, timeout, "GET", "login", param, nil)
	if err != nil {
		return errors.Wrap(err, "daap: login request")
	}
	if status < 200 || status >= 300 {
		return &AuthenticationError{status: status}
	}

	nodes, err := dmap.Decode(body)
	if err != nil {
		return errors.Wrap(err, "daap: decoding login response")
	}
	mlid, ok := dmap.First(nodes, "mlog", "mlid")
	if !ok {
		return errors.New("daap: login response missing mlog/mlid")
	}

	c.sessionID = uint32(mlid.Uint)
	log.Debug("daap: logged in, session=%d", c.sessionID)
	return nil
}

// Connect establishes the DAAP session up front, so a caller (the atvkit
// facade's connect action) observes login failures immediately rather than
// on the first Get/Post.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLoggedIn(ctx, timeout)
}

func (c *Client) ensureLoggedIn(ctx context.Context, timeout time.Duration) error {
	if c.sessionID != 0 {
		return nil
	}
	return c.login(ctx, timeout)
}

// Get issues a DAAP GET request for cmd with additional query parameters,
// retrying exactly once via implicit re-login on a non-2xx response
// (spec.md §4.G, testable properties 7-8). When daapData is true, the
// response body is parsed as DMAP before being returned.
func (c *Client) Get(ctx context.Context, cmd string, daapData bool, timeout time.Duration, params ...string) ([]dmap.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := c.requestWithRetry(ctx, timeout, "GET", cmd, params, nil)
	if err != nil {
		return nil, err
	}
	if !daapData {
		return nil, nil
	}
	return dmap.Decode(body)
}

// Post issues a DAAP POST request with a URL-encoded body, under the same
// retry policy as Get.
func (c *Client) Post(ctx context.Context, cmd string, data url.Values, timeout time.Duration, params ...string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.requestWithRetry(ctx, timeout, "POST", cmd, params, strings.NewReader(data.Encode()))
}

// requestWithRetry implements the "one implicit re-login, one retry" policy
// from spec.md §4.G/§7. Caller must hold c.mu.
func (c *Client) requestWithRetry(ctx context.Context, timeout time.Duration, method, cmd string, params []string, body io.Reader) ([]byte, error) {
	if err := c.ensureLoggedIn(ctx, timeout); err != nil {
		return nil, err
	}

	// Buffer the body so the retry sends the same payload as the first try.
	var payload []byte
	if body != nil {
		var err error
		if payload, err = io.ReadAll(body); err != nil {
			return nil, err
		}
	}
	requestBody := func() io.Reader {
		if body == nil {
			return nil
		}
		return bytes.NewReader(payload)
	}

	respBody, status, err := c.do(ctx, timeout, method, cmd, strings.Join(append([]string{c.sessionParam()}, params...), "&"), requestBody())
	if err != nil {
		return nil, err
	}
	if status >= 200 && status < 300 {
		return respBody, nil
	}

	// Treat non-2xx as an expired session: re-login once, retry once.
	c.sessionID = 0
	if err := c.login(ctx, timeout); err != nil {
		return nil, err
	}

	respBody, status, err = c.do(ctx, timeout, method, cmd, strings.Join(append([]string{c.sessionParam()}, params...), "&"), requestBody())
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &AuthenticationError{status: status}
	}
	return respBody, nil
}

func (c *Client) sessionParam() string {
	return "session-id=" + strconv.FormatUint(uint64(c.sessionID), 10)
}

// do performs one HTTP round trip and returns the raw response body and
// status code. The cmd/auth split mirrors spec.md §6's URL template:
// "<cmd>[AUTH]" with [AUTH] replaced by &-joined parameters.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, cmd, auth string, body io.Reader) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := c.baseURL + "/" + cmd
	if auth != "" {
		reqURL += "?" + auth
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, 0, err
	}
	for k, v := range fixedHeaders {
		req.Header.Set(k, v)
	}
	if method == "POST" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return respBody, resp.StatusCode, nil
}
