package offsync

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unkn0wn-root/offsync/internal/util"
)

// ResponseType mirrors the fetch response types that matter for caching.
type ResponseType string

const (
	TypeBasic  ResponseType = "basic"  // same-origin
	TypeCORS   ResponseType = "cors"   // cross-origin, readable
	TypeOpaque ResponseType = "opaque" // cross-origin, not readable by the page
)

// Snapshot is a fully buffered response. Response bodies can be read once, so
// anything that is both cached and returned goes through Capture first.
type Snapshot struct {
	URL      string       `json:"url" cbor:"1,keyasint" msgpack:"url"`
	Status   int          `json:"status" cbor:"2,keyasint" msgpack:"status"`
	Type     ResponseType `json:"type" cbor:"3,keyasint" msgpack:"type"`
	Header   http.Header  `json:"header,omitempty" cbor:"4,keyasint,omitempty" msgpack:"header,omitempty"`
	Body     []byte       `json:"body,omitempty" cbor:"5,keyasint,omitempty" msgpack:"body,omitempty"`
	StoredAt time.Time    `json:"stored_at" cbor:"6,keyasint" msgpack:"stored_at"`

	oversize bool
}

// Cacheable reports whether the snapshot may enter a bucket: status exactly 200,
// a same-origin response and a body that was fully buffered.
func (s Snapshot) Cacheable() bool {
	return s.Status == http.StatusOK && s.Type == TypeBasic && !s.oversize
}

// Oversize reports that the body exceeded the capture cap and was not buffered.
func (s Snapshot) Oversize() bool { return s.oversize }

// Response builds a fresh *http.Response for req. Each call gets its own body reader.
func (s Snapshot) Response(req *http.Request) *http.Response {
	return buildResponse(req, s.Status, s.Header.Clone(), s.Body)
}

// Capture buffers resp and returns its snapshot plus a replayable response
// that can be handed to the caller. resp.Body is consumed and closed.
func Capture(origin *url.URL, req *http.Request, resp *http.Response) (Snapshot, *http.Response, error) {
	return CaptureLimit(origin, req, resp, 0)
}

// CaptureLimit is Capture with a body cap. A body longer than maxBody bytes
// is not buffered: the snapshot reports Oversize (never Cacheable) and the
// returned response streams the original body. maxBody <= 0 means no cap.
func CaptureLimit(origin *url.URL, req *http.Request, resp *http.Response, maxBody int64) (Snapshot, *http.Response, error) {
	final := responseURL(origin, req, resp)
	snap := Snapshot{
		URL:    final.String(),
		Status: resp.StatusCode,
		Type:   responseType(origin, final, resp),
		Header: resp.Header.Clone(),
	}
	if maxBody > 0 && resp.ContentLength > maxBody {
		snap.oversize = true
		return snap, resp, nil
	}

	var src io.Reader = resp.Body
	if maxBody > 0 {
		src = io.LimitReader(resp.Body, maxBody+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		resp.Body.Close()
		return Snapshot{}, nil, fmt.Errorf("read response body: %w", err)
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		snap.oversize = true
		resp.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), c: resp.Body}
		return snap, resp, nil
	}
	resp.Body.Close()

	snap.Body = body
	replay := buildResponse(req, resp.StatusCode, resp.Header.Clone(), body)
	replay.Trailer = resp.Trailer
	return snap, replay, nil
}

// prefixedBody replays the bytes already read ahead of the unread remainder.
type prefixedBody struct {
	io.Reader
	c io.Closer
}

func (b *prefixedBody) Close() error { return b.c.Close() }

// responseURL is the URL the response actually came from (after redirects, if
// the RoundTripper followed any).
func responseURL(origin *url.URL, req *http.Request, resp *http.Response) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return util.Resolve(origin, resp.Request.URL)
	}
	return util.Resolve(origin, req.URL)
}

func responseType(origin, final *url.URL, resp *http.Response) ResponseType {
	if util.SameOrigin(origin, final) {
		return TypeBasic
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		return TypeCORS
	}
	return TypeOpaque
}

func buildResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
