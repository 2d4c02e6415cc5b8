package state

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/livepoll/go/internal/models"
)

func question(id uuid.UUID, position int) models.Question {
	return models.Question{
		ID:       id,
		Type:     models.QuestionTypeAgreeDisagree,
		Position: position,
		Status:   models.QuestionStatusPending,
	}
}

func questionIDs(questions []models.Question) []uuid.UUID {
	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func TestReplaceQuestionsSortsByPosition(t *testing.T) {
	s := NewStore()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	s.ReplaceQuestions([]models.Question{
		question(c, 2),
		question(a, 0),
		question(b, 1),
	})

	assert.Equal(t, []uuid.UUID{a, b, c}, questionIDs(s.Questions()))
}

func TestReplaceQuestionsTiesKeepInsertionOrder(t *testing.T) {
	s := NewStore()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	s.ReplaceQuestions([]models.Question{
		question(a, 1),
		question(b, 1),
		question(c, 0),
	})

	assert.Equal(t, []uuid.UUID{c, a, b}, questionIDs(s.Questions()))
}

func TestUpsertQuestionInsertsInOrder(t *testing.T) {
	s := NewStore()
	a, c := uuid.New(), uuid.New()
	s.ReplaceQuestions([]models.Question{question(a, 0), question(c, 2)})

	b := uuid.New()
	s.UpsertQuestion(question(b, 1))

	assert.Equal(t, []uuid.UUID{a, b, c}, questionIDs(s.Questions()))

	// Replacing the same id must not duplicate it.
	moved := question(b, 3)
	s.UpsertQuestion(moved)
	assert.Equal(t, []uuid.UUID{a, c, b}, questionIDs(s.Questions()))
	require.Len(t, s.Questions(), 3)
}

func TestPatchQuestionMergesFieldSubset(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	q := question(id, 0)
	q.Prompt = "original"
	s.ReplaceQuestions([]models.Question{q})

	active := models.QuestionStatusActive
	s.PatchQuestion(id, QuestionPatch{Status: &active})

	got, ok := s.Question(id)
	require.True(t, ok)
	assert.Equal(t, models.QuestionStatusActive, got.Status)
	assert.Equal(t, "original", got.Prompt, "unpatched fields untouched")
}

func TestPatchQuestionUnknownIDIsSilentNoOp(t *testing.T) {
	s := NewStore()
	s.ReplaceQuestions([]models.Question{question(uuid.New(), 0)})

	active := models.QuestionStatusActive
	require.NotPanics(t, func() {
		s.PatchQuestion(uuid.New(), QuestionPatch{Status: &active})
	})
	assert.Equal(t, models.QuestionStatusPending, s.Questions()[0].Status)
}

func TestRemoveQuestion(t *testing.T) {
	s := NewStore()
	a, b := uuid.New(), uuid.New()
	s.ReplaceQuestions([]models.Question{question(a, 0), question(b, 1)})

	s.RemoveQuestion(a)
	assert.Equal(t, []uuid.UUID{b}, questionIDs(s.Questions()))

	// Unknown id removal is harmless.
	s.RemoveQuestion(uuid.New())
	assert.Equal(t, []uuid.UUID{b}, questionIDs(s.Questions()))
}

func TestReorderQuestionsAssignsContiguousPositions(t *testing.T) {
	s := NewStore()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	s.ReplaceQuestions([]models.Question{
		question(a, 0),
		question(b, 5),
		question(c, 9),
	})

	s.ReorderQuestions([]uuid.UUID{c, a, b})

	got := s.Questions()
	assert.Equal(t, []uuid.UUID{c, a, b}, questionIDs(got))
	for i, q := range got {
		assert.Equal(t, i, q.Position, "contiguous zero-based positions")
	}
}

func TestReorderQuestionsIgnoresUnknownIDs(t *testing.T) {
	s := NewStore()
	a, b := uuid.New(), uuid.New()
	s.ReplaceQuestions([]models.Question{question(a, 0), question(b, 1)})

	require.NotPanics(t, func() {
		s.ReorderQuestions([]uuid.UUID{b, uuid.New(), a})
	})

	got := s.Questions()
	assert.Equal(t, []uuid.UUID{b, a}, questionIDs(got))
	assert.Equal(t, 0, got[0].Position)
	assert.Equal(t, 1, got[1].Position)
}

func TestActiveQuestionFiltersByStatus(t *testing.T) {
	s := NewStore()
	a, b := uuid.New(), uuid.New()
	active := question(b, 1)
	active.Status = models.QuestionStatusActive
	s.ReplaceQuestions([]models.Question{question(a, 0), active})

	got, ok := s.ActiveQuestion()
	require.True(t, ok)
	assert.Equal(t, b, got.ID)

	closed := models.QuestionStatusClosed
	s.PatchQuestion(b, QuestionPatch{Status: &closed})
	_, ok = s.ActiveQuestion()
	assert.False(t, ok)
}

func TestBatchOperations(t *testing.T) {
	s := NewStore()
	a, b := uuid.New(), uuid.New()
	s.ReplaceBatches([]models.Batch{
		{ID: b, Position: 1, Status: models.BatchStatusPending},
		{ID: a, Position: 0, Status: models.BatchStatusPending},
	})

	batches := s.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, a, batches[0].ID)

	activeStatus := models.BatchStatusActive
	s.PatchBatch(a, BatchPatch{Status: &activeStatus})
	got, ok := s.ActiveBatch()
	require.True(t, ok)
	assert.Equal(t, a, got.ID)

	s.RemoveBatch(a)
	_, ok = s.ActiveBatch()
	assert.False(t, ok)
}

func TestItemsAndActivePointer(t *testing.T) {
	s := NewStore()
	itemID := uuid.New()
	s.ReplaceItems([]models.SessionItem{
		{ID: itemID, Kind: models.SessionItemKindSlide, RefID: uuid.New(), Position: 0},
	})

	s.SetActiveItem(&itemID)
	require.NotNil(t, s.ActiveItemID())
	assert.Equal(t, itemID, *s.ActiveItemID())

	// Removing the active item clears the pointer.
	s.RemoveItem(itemID)
	assert.Nil(t, s.ActiveItemID())
}

func TestQuestionsInBatch(t *testing.T) {
	s := NewStore()
	batchID := uuid.New()
	inBatch := question(uuid.New(), 1)
	inBatch.BatchID = &batchID
	s.ReplaceQuestions([]models.Question{question(uuid.New(), 0), inBatch})

	member := s.QuestionsInBatch(batchID)
	require.Len(t, member, 1)
	assert.Equal(t, inBatch.ID, member[0].ID)
}

func TestResetClearsEverything(t *testing.T) {
	s := NewStore()
	s.SetSession(&models.Session{ID: uuid.New(), Status: models.SessionStatusActive})
	s.ReplaceQuestions([]models.Question{question(uuid.New(), 0)})
	s.ReplaceBatches([]models.Batch{{ID: uuid.New()}})
	itemID := uuid.New()
	s.ReplaceItems([]models.SessionItem{{ID: itemID}})
	s.SetActiveItem(&itemID)

	s.Reset()

	assert.Nil(t, s.Session())
	assert.Empty(t, s.Questions())
	assert.Empty(t, s.Batches())
	assert.Empty(t, s.Items())
	assert.Nil(t, s.ActiveItemID())
}

func TestSubscribersNotifiedOnEveryMutation(t *testing.T) {
	s := NewStore()
	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	s.ReplaceQuestions([]models.Question{question(uuid.New(), 0)})
	s.SetSession(&models.Session{ID: uuid.New()})
	s.Reset()
	assert.Equal(t, 3, calls)

	unsubscribe()
	s.Reset()
	assert.Equal(t, 3, calls, "removed observers are not notified")
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	id := uuid.New()
	s.ReplaceQuestions([]models.Question{question(id, 0)})

	got := s.Questions()
	got[0].Status = models.QuestionStatusClosed

	fresh, ok := s.Question(id)
	require.True(t, ok)
	assert.Equal(t, models.QuestionStatusPending, fresh.Status, "callers mutate copies, not the store")
}
