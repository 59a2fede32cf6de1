package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier, e.g. "shift-3f0c...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// VoucherCode returns a short upper-case code that cashiers can type.
func VoucherCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "VAL-" + strings.ToUpper(raw[:10])
}
