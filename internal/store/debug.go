package store

import (
	"maps"

	"github.com/Saisumanthklv/weapp-starter-template/internal/logger"
)

// DebugMiddleware logs every proposed update with the state before and
// after it. It never changes the patch.
func DebugMiddleware(log logger.Logger) Middleware {
	return func(state map[string]any, patch Patch) Patch {
		after := maps.Clone(state)
		maps.Copy(after, patch)
		log.Debug("state update",
			logger.Any("before", state),
			logger.Any("updates", map[string]any(patch)),
			logger.Any("after", after))
		return patch
	}
}
