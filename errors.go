package offsync

import (
	"fmt"
	"sort"
	"strings"
)

// WarmError lists the precache URLs that could not be stored. The bucket is
// still usable; Warm never aborts on a single failure.
type WarmError struct {
	Generation string
	Failed     map[string]error // url -> cause
}

func (e *WarmError) Error() string {
	urls := make([]string, 0, len(e.Failed))
	for u := range e.Failed {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return fmt.Sprintf("warm %q: %d url(s) failed: %s", e.Generation, len(urls), strings.Join(urls, ", "))
}

func (e *WarmError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// EvictError lists stale generations that could not be fully deleted. They stay
// registered and are retried on the next activation.
type EvictError struct {
	Failed map[string]error // generation -> cause
}

func (e *EvictError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for n := range e.Failed {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) == 1 {
		return fmt.Sprintf("evict generation %q: %v", names[0], e.Failed[names[0]])
	}
	return fmt.Sprintf("evict %d generations failed: %s", len(names), strings.Join(names, ", "))
}

func (e *EvictError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
