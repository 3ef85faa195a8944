package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateOrderNumber builds a public order identifier. The date prefix keeps
// numbers roughly sortable for support staff; the UUID-derived suffix makes
// them unguessable, which matters because guests track orders by number.
func GenerateOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix)
}
