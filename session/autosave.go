package session

import (
	"log"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/quaverhq/quaver/doc"
)

// autosaver writes the document back to its own path a little while after
// the last edit settles. The edit thread takes a detached snapshot under the
// mutex; the debounced flush serializes that snapshot without ever touching
// the live document.
type autosaver struct {
	debounced func(func())

	mu   sync.Mutex
	snap *doc.Document
}

// EnableAutosave arms autosaving with the given quiet period. It hooks the
// protocol's change notification, so every completed undo step, redo, or
// recorded action schedules a save. Documents without a path yet are left
// alone.
func (s *Session) EnableAutosave(quiet time.Duration) {
	as := &autosaver{debounced: debounce.New(quiet)}
	s.autosave = as
	s.Prot.Changed = func() {
		if s.Doc.Path() == "" {
			return
		}
		as.mu.Lock()
		as.snap = s.Doc.SnapshotForRead()
		as.mu.Unlock()
		as.debounced(as.flush)
	}
}

func (as *autosaver) flush() {
	as.mu.Lock()
	snap := as.snap
	as.snap = nil
	as.mu.Unlock()
	if snap == nil {
		return
	}
	if err := snap.Save(snap.Path()); err != nil {
		log.Printf("autosave %s: %v", snap.Path(), err)
	}
}
