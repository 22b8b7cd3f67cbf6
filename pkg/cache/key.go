package cache

import (
	"fmt"
)

// Key builds the cache key for a resource type fetched with an effective
// limit. Format: "{resourceType}:{effectiveLimit}", e.g. "patients:500".
func Key(resourceType string, effectiveLimit int) string {
	return fmt.Sprintf("%s:%d", resourceType, effectiveLimit)
}
