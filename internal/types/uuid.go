package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex ldg_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_TENANT        = "ten"
	UUID_PREFIX_LEDGER_ENTRY  = "ldg"
	UUID_PREFIX_WEBHOOK_EVENT = "evt"
	UUID_PREFIX_REFUND        = "ref"
	UUID_PREFIX_REQUEST       = "req"
)
