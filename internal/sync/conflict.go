package sync

import (
	"sync"
	"time"

	"github.com/annel0/mca-tools/internal/logging"
	"github.com/annel0/mca-tools/internal/vec"
)

// Conflict правка одной позиции, пришедшая с другого узла поверх уже известной
type Conflict struct {
	LocalChange  *Change
	RemoteChange *Change
	DetectedAt   time.Time
}

// ConflictResolver выбирает правку, которая останется в мире
type ConflictResolver interface {
	Resolve(conflict *Conflict) (*Change, error)
}

// LWWResolver реализует Last-Write-Wins. При равном времени побеждает
// больший идентификатор узла, так все узлы приходят к одному блоку.
type LWWResolver struct{}

// NewLWWResolver создаёт новый Last-Write-Wins resolver
func NewLWWResolver() ConflictResolver {
	return &LWWResolver{}
}

func (r *LWWResolver) Resolve(conflict *Conflict) (*Change, error) {
	local, remote := conflict.LocalChange, conflict.RemoteChange
	switch {
	case remote.Timestamp.After(local.Timestamp):
		return remote, nil
	case local.Timestamp.After(remote.Timestamp):
		return local, nil
	case remote.Source > local.Source:
		return remote, nil
	}
	logging.Debug("LWW Resolver: (%d,%d,%d) остаётся правка %s", local.Pos.X, local.Pos.Y, local.Pos.Z, local.Source)
	return local, nil
}

// writeLog последняя применённая правка по каждой позиции
type writeLog struct {
	mu   sync.Mutex
	last map[vec.Vec3]Change
}

func newWriteLog() *writeLog {
	return &writeLog{last: make(map[vec.Vec3]Change)}
}

// record запоминает правку своего узла
func (w *writeLog) record(ch Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last[ch.Pos] = ch
}

// admit решает, применять ли удалённую правку, и запоминает победителя
func (w *writeLog) admit(resolver ConflictResolver, remote Change) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	local, ok := w.last[remote.Pos]
	if !ok {
		w.last[remote.Pos] = remote
		return true, nil
	}
	winner, err := resolver.Resolve(&Conflict{LocalChange: &local, RemoteChange: &remote, DetectedAt: time.Now()})
	if err != nil {
		return false, err
	}
	if winner != &remote {
		return false, nil
	}
	w.last[remote.Pos] = remote
	return true, nil
}
