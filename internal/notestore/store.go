// Package notestore keeps the signed-in user's notes in memory and in step
// with the server. Pins are applied optimistically; creates and deletes wait
// for the server.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/naveenspark/quicknotes/internal/session"
	"github.com/naveenspark/quicknotes/pkg/client"
	"github.com/naveenspark/quicknotes/pkg/domain"
)

// OpKind names a mutation in flight on a note.
type OpKind int

const (
	OpPin OpKind = iota + 1
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpPin:
		return "pin"
	case OpDelete:
		return "delete"
	}
	return "op(" + strconv.Itoa(int(k)) + ")"
}

// API is the slice of the remote API the store needs.
type API interface {
	ListNotes(ctx context.Context) ([]domain.Note, error)
	CreateNote(ctx context.Context, n domain.NewNote) (*domain.Note, error)
	TogglePin(ctx context.Context, id string) (*domain.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

// Session gates store traffic. *session.Manager implements it.
type Session interface {
	Authenticated() (uint64, bool)
	Current(epoch uint64) bool
	Observe(epoch uint64, err error) bool
}

// Subscriber delivers session transitions. *session.Manager implements it.
type Subscriber interface {
	Subscribe(fn func(session.Change)) func()
}

// Store is the local note collection. It is safe for concurrent use; network
// calls never run under its lock.
type Store struct {
	api    API
	sess   Session
	logger *slog.Logger

	mu       sync.Mutex
	notes    map[string]domain.Note
	draft    domain.Draft
	gen      uint64
	loading  int
	creating int
	ops      map[string][]OpKind
	pinning  map[string]int

	// confirmed records writes the server acknowledged while a list request
	// was in flight, so its older snapshot cannot undo them.
	seq       uint64
	confirmed map[string]write

	locks *keyLock
	loads singleflight.Group
}

// write is a server-confirmed change to one note.
type write struct {
	seq  uint64
	gone bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty store gated by sess.
func New(api API, sess Session, opts ...Option) *Store {
	s := &Store{
		api:     api,
		sess:    sess,
		logger:  slog.Default(),
		notes:   make(map[string]domain.Note),
		ops:     make(map[string][]OpKind),
		pinning: make(map[string]int),
		locks:   newKeyLock(),

		confirmed: make(map[string]write),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach resets the store on every session transition, so notes never
// outlive the session that fetched them. The returned func detaches.
func (s *Store) Attach(sub Subscriber) func() {
	return sub.Subscribe(func(c session.Change) {
		if c.From.Status == c.To.Status {
			return
		}
		s.Reset()
	})
}

// Reset drops every note and makes all in-flight completions no-ops.
// The draft is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	clear(s.notes)
	clear(s.confirmed)
	s.loading = 0
	s.creating = 0
}

// Load replaces the collection with the server's. Concurrent calls share one
// request, which runs detached from any single caller's cancellation. Creates,
// deletes and pins confirmed while the request was in flight are kept.
func (s *Store) Load(ctx context.Context) error {
	epoch, ok := s.sess.Authenticated()
	if !ok {
		return fmt.Errorf("notestore.Load: %w", ErrNotAuthenticated)
	}
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	key := strconv.FormatUint(epoch, 10) + "/" + strconv.FormatUint(gen, 10)
	ch := s.loads.DoChan(key, func() (any, error) {
		return nil, s.load(context.WithoutCancel(ctx), epoch, gen)
	})
	var err error
	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("notestore.Load: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, epoch, gen uint64) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrDiscarded
	}
	s.loading++
	since := s.seq
	s.mu.Unlock()

	notes, err := s.api.ListNotes(ctx)
	if err != nil {
		s.sess.Observe(epoch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.loading--
	}
	defer func() {
		if s.loading == 0 {
			clear(s.confirmed)
		}
	}()
	if s.gen != gen || !s.sess.Current(epoch) {
		s.logger.Debug("note list discarded", "reason", "session changed")
		return ErrDiscarded
	}
	if err != nil {
		return err
	}

	next := make(map[string]domain.Note, len(notes))
	for _, n := range notes {
		if n.ID == "" {
			continue
		}
		if s.pinning[n.ID] > 0 {
			if local, ok := s.notes[n.ID]; ok {
				n.IsPinned = local.IsPinned
			}
		}
		next[n.ID] = n
	}
	for id, w := range s.confirmed {
		if w.seq <= since {
			continue
		}
		if local, ok := s.notes[id]; ok && !w.gone {
			next[id] = local
		} else {
			delete(next, id)
		}
	}
	s.notes = next
	s.logger.Debug("notes loaded", "count", len(next))
	return nil
}

// Create validates n and sends it. The note is added only once the server
// returns it. On success the draft is cleared.
func (s *Store) Create(ctx context.Context, n domain.NewNote) (domain.Note, error) {
	n, err := n.Validate()
	if err != nil {
		return domain.Note{}, fmt.Errorf("notestore.Create: %w", err)
	}
	epoch, ok := s.sess.Authenticated()
	if !ok {
		return domain.Note{}, fmt.Errorf("notestore.Create: %w", ErrNotAuthenticated)
	}

	s.mu.Lock()
	gen := s.gen
	s.creating++
	s.mu.Unlock()

	created, err := s.api.CreateNote(ctx, n)
	if err != nil {
		s.sess.Observe(epoch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.creating--
	}
	if s.gen != gen || !s.sess.Current(epoch) {
		return domain.Note{}, fmt.Errorf("notestore.Create: %w", ErrDiscarded)
	}
	if err != nil {
		return domain.Note{}, fmt.Errorf("notestore.Create: %w", err)
	}
	if created.Tags == nil {
		created.Tags = []string{}
	}
	s.notes[created.ID] = *created
	s.confirmLocked(created.ID, false)
	s.draft = domain.Draft{}
	s.logger.Info("note created", "note_id", created.ID)
	return *created, nil
}

// CreateDraft submits the current draft.
func (s *Store) CreateDraft(ctx context.Context) (domain.Note, error) {
	return s.Create(ctx, s.Draft().NewNote())
}

// TogglePin flips the pinned flag right away and rolls it back if the server
// rejects the change. Calls for the same note run one after another.
func (s *Store) TogglePin(ctx context.Context, id string) error {
	err := s.mutate(ctx, id, OpPin, s.togglePin)
	if err != nil {
		return fmt.Errorf("notestore.TogglePin: %w", err)
	}
	return nil
}

func (s *Store) togglePin(ctx context.Context, id string, epoch, gen uint64) error {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	want := !n.IsPinned
	n.IsPinned = want
	s.notes[id] = n
	s.pinning[id]++
	s.mu.Unlock()

	srv, err := s.api.TogglePin(ctx, id)
	if err != nil {
		s.sess.Observe(epoch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinning[id]--; s.pinning[id] <= 0 {
		delete(s.pinning, id)
	}
	if s.gen != gen || !s.sess.Current(epoch) {
		return ErrDiscarded
	}
	cur, ok := s.notes[id]
	if !ok {
		return err
	}
	if err != nil {
		cur.IsPinned = !want
		s.notes[id] = cur
		s.logger.Debug("pin rolled back", "note_id", id, "error", err)
		if client.IsNotFound(err) {
			delete(s.notes, id)
			s.confirmLocked(id, true)
			return ErrNotFound
		}
		return err
	}
	if srv != nil && srv.ID == id {
		if srv.Tags == nil {
			srv.Tags = []string{}
		}
		cur = *srv
	}
	s.notes[id] = cur
	s.confirmLocked(id, false)
	return nil
}

// Delete removes a note once the server confirms it. A note the server no
// longer has is dropped locally and reported as ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.mutate(ctx, id, OpDelete, s.delete)
	if err != nil {
		return fmt.Errorf("notestore.Delete: %w", err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, id string, epoch, gen uint64) error {
	s.mu.Lock()
	_, ok := s.notes[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	err := s.api.DeleteNote(ctx, id)
	if err != nil {
		s.sess.Observe(epoch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !s.sess.Current(epoch) {
		return ErrDiscarded
	}
	switch {
	case client.IsNotFound(err):
		delete(s.notes, id)
		s.confirmLocked(id, true)
		return ErrNotFound
	case err != nil:
		return err
	}
	delete(s.notes, id)
	s.confirmLocked(id, true)
	s.logger.Info("note deleted", "note_id", id)
	return nil
}

// confirmLocked remembers a server-confirmed write for the list requests in
// flight. s.mu must be held.
func (s *Store) confirmLocked(id string, gone bool) {
	if s.loading == 0 {
		return
	}
	s.seq++
	s.confirmed[id] = write{seq: s.seq, gone: gone}
}

// mutate runs fn with the per-note lock held after checking the session and
// the note. While queued or running the op is reported by Mutating.
func (s *Store) mutate(ctx context.Context, id string, kind OpKind, fn func(ctx context.Context, id string, epoch, gen uint64) error) error {
	epoch, ok := s.sess.Authenticated()
	if !ok {
		return ErrNotAuthenticated
	}
	s.mu.Lock()
	if _, ok := s.notes[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	gen := s.gen
	s.ops[id] = append(s.ops[id], kind)
	s.mu.Unlock()
	defer s.endOp(id, kind)

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale || !s.sess.Current(epoch) {
		return ErrDiscarded
	}
	return fn(ctx, id, epoch, gen)
}

func (s *Store) endOp(id string, kind OpKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.ops[id]
	if i := slices.Index(q, kind); i >= 0 {
		q = slices.Delete(q, i, i+1)
	}
	if len(q) == 0 {
		delete(s.ops, id)
		return
	}
	s.ops[id] = q
}

// Sorted returns the notes pinned first, newest first within each group.
func (s *Store) Sorted() []domain.Note {
	s.mu.Lock()
	out := make([]domain.Note, 0, len(s.notes))
	for _, n := range s.notes {
		n.Tags = slices.Clone(n.Tags)
		out = append(out, n)
	}
	s.mu.Unlock()
	domain.SortForDisplay(out)
	return out
}

// Get returns the note with id.
func (s *Store) Get(id string) (domain.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if ok {
		n.Tags = slices.Clone(n.Tags)
	}
	return n, ok
}

// Len returns the number of notes held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// Loading reports whether a list request is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// Creating reports whether a create request is in flight.
func (s *Store) Creating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creating > 0
}

// Mutating reports the operation running or queued on id, if any.
func (s *Store) Mutating(id string) (OpKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.ops[id]
	if len(q) == 0 {
		return 0, false
	}
	return q[0], true
}

// Draft returns a copy of the unsaved note.
func (s *Store) Draft() domain.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// SetTitle sets the draft title.
func (s *Store) SetTitle(title string) {
	s.mu.Lock()
	s.draft.Title = title
	s.mu.Unlock()
}

// SetContent sets the draft body.
func (s *Store) SetContent(content string) {
	s.mu.Lock()
	s.draft.Content = content
	s.mu.Unlock()
}

// SetPinned sets whether the draft is created pinned.
func (s *Store) SetPinned(pinned bool) {
	s.mu.Lock()
	s.draft.IsPinned = pinned
	s.mu.Unlock()
}

// AddTag appends a tag to the draft. See domain.Draft.AddTag.
func (s *Store) AddTag(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.AddTag(tag)
}

// RemoveTag drops a tag from the draft.
func (s *Store) RemoveTag(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.RemoveTag(tag)
}

// ClearDraft discards the unsaved note.
func (s *Store) ClearDraft() {
	s.mu.Lock()
	s.draft = domain.Draft{}
	s.mu.Unlock()
}

// IsDiscarded reports whether err only means the result was dropped because
// the session or store moved on. Views treat it as silence.
func IsDiscarded(err error) bool {
	return errors.Is(err, ErrDiscarded)
}
