package offsync

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
)

// NewProxy returns the handler the browser talks to: every inbound request is
// rewritten to origin and served through rt (normally an *Interceptor). GETs
// never fail there; a failed non-GET becomes 502 so the page can queue it.
func NewProxy(rt http.RoundTripper, origin string, log Logger) (http.Handler, error) {
	if rt == nil {
		return nil, errors.New("offsync: proxy transport is required")
	}
	target, err := parseOrigin(origin)
	if err != nil {
		return nil, err
	}
	log = coalesce[Logger](log, NopLogger{})

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Host = target.Host
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream request failed", Fields{"method": r.Method, "path": r.URL.Path, "err": err})
			http.Error(w, fmt.Sprintf("upstream unavailable: %v", err), http.StatusBadGateway)
		},
	}, nil
}
