package syncer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/unkn0wn-root/offsync/outbox"
)

var (
	ErrUnknownTag = errors.New("syncer: unknown sync tag")
	ErrNoOutbox   = errors.New("syncer: outbox is required")
)

// StatusError is a non-2xx answer from the mutation API.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("syncer: %s answered %d", e.URL, e.Code)
}

// DeliveryError lists the entries of one kind that stay pending after a drain.
type DeliveryError struct {
	Kind   outbox.Kind
	Failed map[string]error // entry id -> cause
}

func (e *DeliveryError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("syncer: %d %s entr(ies) not delivered: %s", len(ids), e.Kind, strings.Join(ids, ", "))
}

func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}
