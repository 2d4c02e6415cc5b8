// Package state holds a client's local copy of session data. The store is a
// pure in-memory structure: no network or persistence side effects, which is
// what keeps reconciliation simple — reconciliation just replaces or patches
// the store's contents.
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// Store is the single source of truth for session/question/batch/item
// collections on one client. It is mutated only through these operations.
type Store struct {
	mu           sync.RWMutex
	session      *models.Session
	questions    []models.Question
	batches      []models.Batch
	items        []models.SessionItem
	activeItemID *uuid.UUID
	subs         map[int]func()
	nextSubID    int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		subs: make(map[int]func()),
	}
}

// Subscribe registers an observer notified after every mutation. The
// returned function removes the observer.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notify runs outside the lock so observers can read the store.
func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// sortByPosition stable-sorts in place; ties keep insertion order.
func sortByPosition[T any](items []T, pos func(T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		return pos(items[i]) < pos(items[j])
	})
}

// repositionAll assigns position = index for each id in order. Ids not
// present are skipped rather than erroring.
func repositionAll[T any](items []T, ids []uuid.UUID, id func(T) uuid.UUID, set func(*T, int)) {
	index := make(map[uuid.UUID]int, len(items))
	for i, item := range items {
		index[id(item)] = i
	}
	next := 0
	for _, want := range ids {
		i, ok := index[want]
		if !ok {
			continue
		}
		set(&items[i], next)
		next++
	}
}

// SetSession replaces the session row.
func (s *Store) SetSession(session *models.Session) {
	s.mu.Lock()
	if session == nil {
		s.session = nil
	} else {
		copied := *session
		s.session = &copied
	}
	s.mu.Unlock()
	s.notify()
}

// Session returns a copy of the session row, or nil when unloaded.
func (s *Store) Session() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

// SessionPatch is a field subset merged into the session row.
type SessionPatch struct {
	Status         *models.SessionStatus
	Title          *string
	ReasonsEnabled *bool
	TimerExpiresAt *time.Time
	ClearTimer     bool
}

// PatchSession merges fields into the session row. A no-op when no session
// is loaded.
func (s *Store) PatchSession(patch SessionPatch) {
	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return
	}
	if patch.Status != nil {
		s.session.Status = *patch.Status
	}
	if patch.Title != nil {
		s.session.Title = *patch.Title
	}
	if patch.ReasonsEnabled != nil {
		s.session.ReasonsEnabled = *patch.ReasonsEnabled
	}
	if patch.ClearTimer {
		s.session.TimerExpiresAt = nil
	} else if patch.TimerExpiresAt != nil {
		t := *patch.TimerExpiresAt
		s.session.TimerExpiresAt = &t
	}
	s.mu.Unlock()
	s.notify()
}

// ReplaceQuestions swaps the full question collection, re-sorted by position.
func (s *Store) ReplaceQuestions(questions []models.Question) {
	copied := append([]models.Question(nil), questions...)
	sortByPosition(copied, func(q models.Question) int { return q.Position })

	s.mu.Lock()
	s.questions = copied
	s.mu.Unlock()
	s.notify()
}

// Questions returns a copy of the question collection in position order.
func (s *Store) Questions() []models.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Question(nil), s.questions...)
}

// Question returns the question with the given id.
func (s *Store) Question(id uuid.UUID) (models.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}

// ActiveQuestion returns the currently active question, if any. The
// orchestration layer guarantees at most one.
func (s *Store) ActiveQuestion() (models.Question, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.questions {
		if q.Status == models.QuestionStatusActive {
			return q, true
		}
	}
	return models.Question{}, false
}

// QuestionsInBatch returns the member questions of a batch in position order.
func (s *Store) QuestionsInBatch(batchID uuid.UUID) []models.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var member []models.Question
	for _, q := range s.questions {
		if q.BatchID != nil && *q.BatchID == batchID {
			member = append(member, q)
		}
	}
	return member
}

// UpsertQuestion inserts or replaces one question, then re-sorts. Used for
// externally observed creations; never append-without-resort.
func (s *Store) UpsertQuestion(question models.Question) {
	s.mu.Lock()
	replaced := false
	for i, q := range s.questions {
		if q.ID == question.ID {
			s.questions[i] = question
			replaced = true
			break
		}
	}
	if !replaced {
		s.questions = append(s.questions, question)
	}
	sortByPosition(s.questions, func(q models.Question) int { return q.Position })
	s.mu.Unlock()
	s.notify()
}

// QuestionPatch is a field subset merged into a question.
type QuestionPatch struct {
	Status     *models.QuestionStatus
	Position   *int
	Prompt     *string
	Options    *[]string
	Anonymous  *bool
	BatchID    *uuid.UUID
	ClearBatch bool
}

// PatchQuestion merges fields into the question with the given id. Unknown
// ids are a silent no-op: late-arriving events for entities this client
// hasn't loaded must not crash it.
func (s *Store) PatchQuestion(id uuid.UUID, patch QuestionPatch) {
	s.mu.Lock()
	idx := -1
	for i, q := range s.questions {
		if q.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	q := &s.questions[idx]
	if patch.Status != nil {
		q.Status = *patch.Status
	}
	if patch.Position != nil {
		q.Position = *patch.Position
	}
	if patch.Prompt != nil {
		q.Prompt = *patch.Prompt
	}
	if patch.Options != nil {
		q.Options = append([]string(nil), (*patch.Options)...)
	}
	if patch.Anonymous != nil {
		q.Anonymous = *patch.Anonymous
	}
	if patch.ClearBatch {
		q.BatchID = nil
	} else if patch.BatchID != nil {
		id := *patch.BatchID
		q.BatchID = &id
	}
	sortByPosition(s.questions, func(q models.Question) int { return q.Position })
	s.mu.Unlock()
	s.notify()
}

// RemoveQuestion deletes the question with the given id, if present.
func (s *Store) RemoveQuestion(id uuid.UUID) {
	s.mu.Lock()
	kept := s.questions[:0]
	for _, q := range s.questions {
		if q.ID != id {
			kept = append(kept, q)
		}
	}
	s.questions = kept
	s.mu.Unlock()
	s.notify()
}

// ReorderQuestions assigns position = index for each id in order, then
// re-sorts. Unknown ids are skipped.
func (s *Store) ReorderQuestions(ids []uuid.UUID) {
	s.mu.Lock()
	repositionAll(s.questions, ids,
		func(q models.Question) uuid.UUID { return q.ID },
		func(q *models.Question, pos int) { q.Position = pos },
	)
	sortByPosition(s.questions, func(q models.Question) int { return q.Position })
	s.mu.Unlock()
	s.notify()
}

// ReplaceBatches swaps the full batch collection, re-sorted by position.
func (s *Store) ReplaceBatches(batches []models.Batch) {
	copied := append([]models.Batch(nil), batches...)
	sortByPosition(copied, func(b models.Batch) int { return b.Position })

	s.mu.Lock()
	s.batches = copied
	s.mu.Unlock()
	s.notify()
}

// Batches returns a copy of the batch collection in position order.
func (s *Store) Batches() []models.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Batch(nil), s.batches...)
}

// Batch returns the batch with the given id.
func (s *Store) Batch(id uuid.UUID) (models.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.batches {
		if b.ID == id {
			return b, true
		}
	}
	return models.Batch{}, false
}

// ActiveBatch returns the currently active batch, if any.
func (s *Store) ActiveBatch() (models.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.batches {
		if b.Status == models.BatchStatusActive {
			return b, true
		}
	}
	return models.Batch{}, false
}

// UpsertBatch inserts or replaces one batch, then re-sorts.
func (s *Store) UpsertBatch(batch models.Batch) {
	s.mu.Lock()
	replaced := false
	for i, b := range s.batches {
		if b.ID == batch.ID {
			s.batches[i] = batch
			replaced = true
			break
		}
	}
	if !replaced {
		s.batches = append(s.batches, batch)
	}
	sortByPosition(s.batches, func(b models.Batch) int { return b.Position })
	s.mu.Unlock()
	s.notify()
}

// BatchPatch is a field subset merged into a batch.
type BatchPatch struct {
	Status   *models.BatchStatus
	Position *int
	Title    *string
}

// PatchBatch merges fields into the batch with the given id; unknown ids
// are a silent no-op.
func (s *Store) PatchBatch(id uuid.UUID, patch BatchPatch) {
	s.mu.Lock()
	idx := -1
	for i, b := range s.batches {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	b := &s.batches[idx]
	if patch.Status != nil {
		b.Status = *patch.Status
	}
	if patch.Position != nil {
		b.Position = *patch.Position
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	sortByPosition(s.batches, func(b models.Batch) int { return b.Position })
	s.mu.Unlock()
	s.notify()
}

// RemoveBatch deletes the batch with the given id, if present.
func (s *Store) RemoveBatch(id uuid.UUID) {
	s.mu.Lock()
	kept := s.batches[:0]
	for _, b := range s.batches {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	s.batches = kept
	s.mu.Unlock()
	s.notify()
}

// ReorderBatches assigns position = index for each id in order.
func (s *Store) ReorderBatches(ids []uuid.UUID) {
	s.mu.Lock()
	repositionAll(s.batches, ids,
		func(b models.Batch) uuid.UUID { return b.ID },
		func(b *models.Batch, pos int) { b.Position = pos },
	)
	sortByPosition(s.batches, func(b models.Batch) int { return b.Position })
	s.mu.Unlock()
	s.notify()
}

// ReplaceItems swaps the full session item collection, re-sorted by position.
func (s *Store) ReplaceItems(items []models.SessionItem) {
	copied := append([]models.SessionItem(nil), items...)
	sortByPosition(copied, func(it models.SessionItem) int { return it.Position })

	s.mu.Lock()
	s.items = copied
	s.mu.Unlock()
	s.notify()
}

// Items returns a copy of the session item collection in position order.
func (s *Store) Items() []models.SessionItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SessionItem(nil), s.items...)
}

// Item returns the session item with the given id.
func (s *Store) Item(id uuid.UUID) (models.SessionItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return models.SessionItem{}, false
}

// UpsertItem inserts or replaces one session item, then re-sorts.
func (s *Store) UpsertItem(item models.SessionItem) {
	s.mu.Lock()
	replaced := false
	for i, it := range s.items {
		if it.ID == item.ID {
			s.items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		s.items = append(s.items, item)
	}
	sortByPosition(s.items, func(it models.SessionItem) int { return it.Position })
	s.mu.Unlock()
	s.notify()
}

// RemoveItem deletes the session item with the given id, if present.
func (s *Store) RemoveItem(id uuid.UUID) {
	s.mu.Lock()
	kept := s.items[:0]
	for _, it := range s.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	s.items = kept
	if s.activeItemID != nil {
		for _, it := range s.items {
			if it.ID == *s.activeItemID {
				s.mu.Unlock()
				s.notify()
				return
			}
		}
		s.activeItemID = nil
	}
	s.mu.Unlock()
	s.notify()
}

// ReorderItems assigns position = index for each id in order.
func (s *Store) ReorderItems(ids []uuid.UUID) {
	s.mu.Lock()
	repositionAll(s.items, ids,
		func(it models.SessionItem) uuid.UUID { return it.ID },
		func(it *models.SessionItem, pos int) { it.Position = pos },
	)
	sortByPosition(s.items, func(it models.SessionItem) int { return it.Position })
	s.mu.Unlock()
	s.notify()
}

// SetActiveItem moves the active-item pointer the presentation renders from.
func (s *Store) SetActiveItem(id *uuid.UUID) {
	s.mu.Lock()
	if id == nil {
		s.activeItemID = nil
	} else {
		copied := *id
		s.activeItemID = &copied
	}
	s.mu.Unlock()
	s.notify()
}

// ActiveItemID returns the active-item pointer, or nil.
func (s *Store) ActiveItemID() *uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeItemID == nil {
		return nil
	}
	copied := *s.activeItemID
	return &copied
}

// Reset empties every collection. Used on session teardown.
func (s *Store) Reset() {
	s.mu.Lock()
	s.session = nil
	s.questions = nil
	s.batches = nil
	s.items = nil
	s.activeItemID = nil
	s.mu.Unlock()
	s.notify()
}
