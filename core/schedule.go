package core

import "time"

// ScheduledDate computes when a fully approved action takes effect. A publish
// takes effect at the node's release date, an unpublish at its expiry date,
// in both cases only if the date lies in the future. nil means immediate.
// Custom action types are always immediate. Pure function, the caller stores
// the result on the instance.
func ScheduledDate(action ActionType, node Node, now time.Time) *time.Time {
	switch action {
	case ActionPublish:
		if node.ReleaseDate != nil && node.ReleaseDate.After(now) {
			return node.ReleaseDate
		}
	case ActionUnpublish:
		if node.ExpireDate != nil && node.ExpireDate.After(now) {
			return node.ExpireDate
		}
	}
	return nil
}
