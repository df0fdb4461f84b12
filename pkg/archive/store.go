// Package archive persists terminal replay logs of evicted sessions.
// Live sessions are never persisted; an archive entry is written exactly
// once, when the sweeper removes a session whose replay log is non-empty.
package archive

import (
	"context"
	"errors"

	"github.com/algoviz-dev/algoviz/pkg/state"
)

// ErrEmptyReplay is returned when asked to archive a replay with no
// snapshots.
var ErrEmptyReplay = errors.New("archive: empty replay log")

// Store saves replay logs somewhere durable.
type Store interface {
	// SaveReplay writes the replay log recorded for a session. The code is
	// only a naming hint; the session no longer exists when this is called.
	SaveReplay(ctx context.Context, code string, replay []state.SessionState) error
}
