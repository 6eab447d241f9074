package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kervik/signoff/core"
)

func TestScheduledDate(t *testing.T) {

	var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var future = now.Add(24 * time.Hour)
	var past = now.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		action core.ActionType
		node   core.Node
		want   *time.Time
	}{
		{"publish without release date", core.ActionPublish, core.Node{}, nil},
		{"publish with future release date", core.ActionPublish, core.Node{ReleaseDate: &future}, &future},
		{"publish with past release date", core.ActionPublish, core.Node{ReleaseDate: &past}, nil},
		{"publish ignores expire date", core.ActionPublish, core.Node{ExpireDate: &future}, nil},
		{"unpublish with future expire date", core.ActionUnpublish, core.Node{ExpireDate: &future}, &future},
		{"unpublish with past expire date", core.ActionUnpublish, core.Node{ExpireDate: &past}, nil},
		{"unpublish ignores release date", core.ActionUnpublish, core.Node{ReleaseDate: &future}, nil},
		{"custom action is always immediate", core.ActionType(5), core.Node{ReleaseDate: &future, ExpireDate: &future}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.ScheduledDate(tt.action, tt.node, now))
		})
	}
}
