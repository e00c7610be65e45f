package outbox

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newID is "<unix-millis>-<random>". The millisecond prefix keeps ids roughly
// time-sortable; the suffix makes ids from concurrent tabs distinct.
func newID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}
