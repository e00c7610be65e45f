package util

import (
	"net/url"
	"strings"
)

// Resolve makes ref absolute against origin and strips the fragment.
// Inbound server requests only carry a path, browser-side ones a full URL;
// both must map to the same cache identity.
func Resolve(origin *url.URL, ref *url.URL) *url.URL {
	u := *ref
	if origin != nil && !u.IsAbs() {
		u = *origin.ResolveReference(&u)
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	return &u
}

// SameOrigin reports whether u shares scheme and host with origin.
// Relative URLs are same-origin by definition.
func SameOrigin(origin, u *url.URL) bool {
	if !u.IsAbs() {
		return true
	}
	if origin == nil {
		return false
	}
	return strings.EqualFold(origin.Scheme, u.Scheme) && strings.EqualFold(origin.Host, u.Host)
}

// StorageKey is the provider key for a request identity inside a bucket.
//
//	bucket:<generation>:<METHOD> <absolute-url>
func StorageKey(generation, method string, u *url.URL) string {
	return "bucket:" + generation + ":" + strings.ToUpper(method) + " " + u.String()
}

// BucketPrefix is the key prefix owned by one bucket.
func BucketPrefix(generation string) string {
	return "bucket:" + generation + ":"
}
