package client

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	P "github.com/cfoust/spheres/pkg/protocol"

	"github.com/repeale/fp-go/option"
	"github.com/sasha-s/go-deadlock"
)

var (
	ErrIDAlreadySet = errors.New("client id already assigned")
	ErrIDRepeated   = errors.New("client id sent again")
)

type remoteObject struct {
	object P.GameObject
	seen   time.Time
}

// WorldState mirrors every object the client knows about. The remote table
// never holds an entry for the client's own ID.
type WorldState struct {
	mutex  deadlock.RWMutex
	local  P.GameObject
	own    opt.Option[P.ClientID]
	remote map[P.ClientID]remoteObject
}

func NewWorldState(local P.GameObject) *WorldState {
	return &WorldState{
		local:  local,
		own:    opt.None[P.ClientID](),
		remote: make(map[P.ClientID]remoteObject),
	}
}

// Own returns the ID the server gave us, if it has.
func (w *WorldState) Own() (P.ClientID, bool) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	if opt.IsNone(w.own) {
		return 0, false
	}
	return w.own.Value, true
}

// SetID stores our ID. The first assignment wins. Repeating it leaves the
// state alone but still reports ErrIDRepeated; a different one is refused.
func (w *WorldState) SetID(id P.ClientID) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if opt.IsSome(w.own) {
		if w.own.Value == id {
			return fmt.Errorf("%w: %d", ErrIDRepeated, id)
		}
		return fmt.Errorf("%w: have %d, got %d", ErrIDAlreadySet, w.own.Value, id)
	}

	w.own = opt.Some(id)
	// anything filed under our ID before we knew it was an echo
	delete(w.remote, id)
	return nil
}

// Apply upserts a remote object. It reports false for our own echo, which
// is dropped.
func (w *WorldState) Apply(sender P.ClientID, object P.GameObject, seen time.Time) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if opt.IsSome(w.own) && w.own.Value == sender {
		return false
	}

	w.remote[sender] = remoteObject{object: object, seen: seen}
	return true
}

func (w *WorldState) Remove(id P.ClientID) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_, ok := w.remote[id]
	delete(w.remote, id)
	return ok
}

// Prune drops remote objects not heard from since before.
func (w *WorldState) Prune(before time.Time) (pruned []P.ClientID) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for id, entry := range w.remote {
		if entry.seen.Before(before) {
			delete(w.remote, id)
			pruned = append(pruned, id)
		}
	}
	slices.Sort(pruned)
	return pruned
}

// Reset forgets our ID and everyone else, keeping the local object.
func (w *WorldState) Reset() {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.own = opt.None[P.ClientID]()
	clear(w.remote)
}

func (w *WorldState) Local() P.GameObject {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.local
}

// Move shifts the local object along the X axis.
func (w *WorldState) Move(dx float32) P.GameObject {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.local.Position.X += dx
	return w.local
}

func (w *WorldState) Remote(id P.ClientID) (P.GameObject, bool) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	entry, ok := w.remote[id]
	return entry.object, ok
}

// Remotes returns the IDs of every known remote object in ascending order.
func (w *WorldState) Remotes() []P.ClientID {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	ids := make([]P.ClientID, 0, len(w.remote))
	for id := range w.remote {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[P.ClientID])
	return ids
}

// Objects is everything to draw this frame: the local object first, then
// remote objects ordered by owner.
func (w *WorldState) Objects() []P.GameObject {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	ids := make([]P.ClientID, 0, len(w.remote))
	for id := range w.remote {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	objects := make([]P.GameObject, 0, len(ids)+1)
	objects = append(objects, w.local)
	for _, id := range ids {
		objects = append(objects, w.remote[id].object)
	}
	return objects
}
