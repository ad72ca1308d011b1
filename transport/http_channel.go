package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Protocol header names. Headers carry intent; the body carries frames.
const (
	headerEndpointSequence = "Seq-Sequence"
	headerEndpointTopic    = "Seq-Topic"
	headerControl          = "Seq-Control"
)

// frameLengthSize is the length-prefix width: [4-byte big-endian length][payload].
const frameLengthSize = 4

// maxFrameSize guards against a corrupted length prefix ballooning a read;
// chosen generously relative to the per-streamer memory budget of one
// record batch, a few MiB.
const maxFrameSize = 256 << 20

// WriteFrame writes one length-prefixed frame: a record batch, or the
// zero-length end-of-stream marker.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [frameLengthSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame. Returns io.EOF only at a clean
// stream boundary (after a zero-length end-of-stream marker or when the
// underlying reader is exhausted between frames).
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [frameLengthSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds %d byte cap", n, maxFrameSize)
	}
	if n == 0 {
		return nil, io.EOF
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// HTTPDialer opens record-batch channels over HTTP/2 on a pooled transport.
type HTTPDialer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDialer builds a dialer against baseURL using a connection-pooled,
// HTTP/2-preferring client: bounded idle connections, keep-alives, no
// default per-request timeout (the caller's context governs that).
func NewHTTPDialer(baseURL string, httpClient *http.Client) *HTTPDialer {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		}
	}
	return &HTTPDialer{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

func (d *HTTPDialer) endpointURL(ep Endpoint) string {
	return d.baseURL + "/sequences/" + url.PathEscape(ep.Sequence) + "/topics" + ep.Topic
}

// SendControl issues a control-plane request and returns the response body.
func (d *HTTPDialer) SendControl(ctx context.Context, ep Endpoint, ctrl ControlMessage, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpointURL(ep)+"/control", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerControl, string(ctrl))
	req.Header.Set(headerEndpointSequence, ep.Sequence)
	req.Header.Set(headerEndpointTopic, ep.Topic)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("transport: control %s for %s/%s failed with status %d: %s",
			ctrl, ep.Sequence, ep.Topic, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// Dial opens a streaming push or pull channel. The same HTTP request body
// carries outbound frames (for push) while the response body carries
// inbound frames (for pull); which side is used is up to the caller.
func (d *HTTPDialer) Dial(ctx context.Context, ep Endpoint, ctrl ControlMessage) (RecordBatchChannel, error) {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpointURL(ep), pr)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set(headerControl, string(ctrl))
	req.Header.Set(headerEndpointSequence, ep.Sequence)
	req.Header.Set(headerEndpointTopic, ep.Topic)
	req.Header.Set("Content-Type", "application/vnd.seqstream.recordbatch")

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := d.httpClient.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	return &httpChannel{
		ctx:     ctx,
		cancel:  cancel,
		pw:      pw,
		pr:      pr,
		respCh:  respCh,
		errCh:   errCh,
		pullBuf: nil,
	}, nil
}

// httpChannel implements RecordBatchChannel over one long-lived HTTP
// request/response pair: the request body is a pipe we write push frames
// into, and the response body is read for pull frames once headers arrive.
type httpChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	pw *io.PipeWriter
	pr *io.PipeReader

	respCh chan *http.Response
	errCh  chan error
	resp   *http.Response

	pullBuf []byte
	closed  bool
}

func (c *httpChannel) Push(ctx context.Context, batch []byte) error {
	if c.closed {
		return ErrChannelClosed
	}
	done := make(chan error, 1)
	go func() { done <- WriteFrame(c.pw, batch) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *httpChannel) CloseSend(ctx context.Context) error {
	if c.closed {
		return nil
	}
	if err := WriteFrame(c.pw, nil); err != nil {
		if err == io.ErrClosedPipe {
			return nil // push side already closed
		}
		return err
	}
	return c.pw.Close()
}

func (c *httpChannel) awaitResponse(ctx context.Context) error {
	if c.resp != nil {
		return nil
	}
	select {
	case resp := <-c.respCh:
		c.resp = resp
		return nil
	case err := <-c.errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *httpChannel) Pull(ctx context.Context) ([]byte, error) {
	if c.closed {
		return nil, ErrChannelClosed
	}
	if err := c.awaitResponse(ctx); err != nil {
		return nil, err
	}
	if c.resp.StatusCode >= 300 {
		body, _ := io.ReadAll(c.resp.Body)
		return nil, fmt.Errorf("transport: pull failed with status %d: %s", c.resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return ReadFrame(c.resp.Body)
}

func (c *httpChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.pw.Close()
	c.pr.Close()
	if c.resp != nil {
		c.resp.Body.Close()
	}
	return nil
}

// ErrChannelClosed is returned by Push/Pull after Close.
var ErrChannelClosed = errChannelClosed{}

type errChannelClosed struct{}

func (errChannelClosed) Error() string { return "transport: channel is closed" }

// MarshalControlBody is a small helper for control-message JSON bodies,
// kept here so both the dialer and its callers share one encoding.
func MarshalControlBody(v any) ([]byte, error) {
	return json.Marshal(v)
}
