package session

import (
	"sync"

	"github.com/concord-chat/relay/internal/models"
)

// Directory is the ordered set of known channels, keyed by id, plus the
// current channel. Insertion order is display order.
//
// Every mutation bumps a generation counter so a bulk load can tell which
// entries changed while its request was in flight.
type Directory struct {
	mu      sync.RWMutex
	entries []dirEntry
	removed map[string]uint64 // channel id -> generation of removal
	gen     uint64
	current string
}

type dirEntry struct {
	channel models.Channel
	gen     uint64 // generation the entry was added at
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{removed: make(map[string]uint64)}
}

// Generation returns the current mutation generation. Capture it before
// fetching and pass it to Merge.
func (d *Directory) Generation() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gen
}

// Merge replaces the directory with a bulk-loaded list. Entries added after
// generation since and missing from loaded are kept after the loaded ones;
// entries removed after since are not resurrected. The current channel falls
// back to the first entry when unset or gone. Returns the resulting list.
func (d *Directory) Merge(loaded []models.Channel, since uint64) []models.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	seen := make(map[string]bool, len(loaded))
	next := make([]dirEntry, 0, len(loaded)+len(d.entries))

	for _, ch := range loaded {
		if ch.ID == "" || seen[ch.ID] {
			continue
		}
		if g, ok := d.removed[ch.ID]; ok && g > since {
			continue
		}
		seen[ch.ID] = true
		next = append(next, dirEntry{channel: ch, gen: d.gen})
	}

	for _, e := range d.entries {
		if !seen[e.channel.ID] && e.gen > since {
			seen[e.channel.ID] = true
			next = append(next, e)
		}
	}

	d.entries = next
	if d.indexLocked(d.current) < 0 {
		d.current = d.firstLocked()
	}
	return d.listLocked()
}

// Add appends a channel unless its id is already present. The first channel
// added to an empty directory becomes current.
func (d *Directory) Add(ch models.Channel) bool {
	if ch.ID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexLocked(ch.ID) >= 0 {
		return false
	}
	d.gen++
	delete(d.removed, ch.ID)
	d.entries = append(d.entries, dirEntry{channel: ch, gen: d.gen})
	if d.current == "" {
		d.current = ch.ID
	}
	return true
}

// Remove deletes a channel preserving the relative order of the rest. When
// the current channel is removed, the first remaining channel becomes current.
func (d *Directory) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	d.removed[id] = d.gen

	idx := d.indexLocked(id)
	if idx < 0 {
		return false
	}
	d.entries = append(d.entries[:idx:idx], d.entries[idx+1:]...)
	if d.current == id {
		d.current = d.firstLocked()
	}
	return true
}

// List returns a copy of the channels in display order
func (d *Directory) List() []models.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listLocked()
}

// Get returns the channel with the given id
func (d *Directory) Get(id string) (models.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if idx := d.indexLocked(id); idx >= 0 {
		return d.entries[idx].channel, true
	}
	return models.Channel{}, false
}

// Len returns the number of channels
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Current returns the current channel, if any
func (d *Directory) Current() (models.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if idx := d.indexLocked(d.current); idx >= 0 {
		return d.entries[idx].channel, true
	}
	return models.Channel{}, false
}

// SetCurrent makes id the current channel; false if it is unknown
func (d *Directory) SetCurrent(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexLocked(id) < 0 {
		return false
	}
	d.current = id
	return true
}

func (d *Directory) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range d.entries {
		if e.channel.ID == id {
			return i
		}
	}
	return -1
}

func (d *Directory) firstLocked() string {
	if len(d.entries) == 0 {
		return ""
	}
	return d.entries[0].channel.ID
}

func (d *Directory) listLocked() []models.Channel {
	out := make([]models.Channel, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.channel
	}
	return out
}
