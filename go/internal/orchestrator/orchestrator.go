// Package orchestrator holds the authoritative session transitions run by
// the admin client and the reconciliation logic run by everyone else.
//
// Every admin transition follows the same three-step pattern: persist, then
// mutate the local store, then broadcast. Persistence failure aborts before
// anything becomes visible; broadcast failure is tolerated because lost
// events are repaired by reconciliation on the next reconnect.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/countdown"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/realtime/events"
	"github.com/mcdev12/livepoll/go/internal/state"
)

var (
	// ErrNotOwner means the caller's admin secret does not match the
	// session's. Only one writer is permitted per session.
	ErrNotOwner = errors.New("orchestrator: admin secret does not match session")

	// ErrInvalidTransition means the requested status change would regress
	// or skip the lifecycle.
	ErrInvalidTransition = errors.New("orchestrator: invalid status transition")
)

// Repository defines what the orchestrator needs from the persistent store.
type Repository interface {
	GetSessionByPublicID(ctx context.Context, publicID string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error
	UpdateSessionTimer(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error
	SetActiveSessionItem(ctx context.Context, sessionID uuid.UUID, itemID *uuid.UUID) error

	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	UpdateQuestionStatus(ctx context.Context, id uuid.UUID, status models.QuestionStatus) error
	ListQuestionsByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Question, error)

	GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	UpdateBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus) error

	ListSessionItems(ctx context.Context, sessionID uuid.UUID) ([]models.SessionItem, error)
}

// Broadcaster publishes fire-and-forget events on the session channel.
// Satisfied by *realtime.Manager.
type Broadcaster interface {
	Send(ctx context.Context, eventType events.EventType, payload interface{}) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for timer deadlines.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// Orchestrator is the single writer of session, question, and batch status.
type Orchestrator struct {
	repo        Repository
	store       *state.Store
	broadcaster Broadcaster
	countdown   *countdown.Countdown
	clock       clockwork.Clock

	sessionPublicID string
	adminSecret     string
}

// NewOrchestrator creates the admin-side orchestrator for one session.
func NewOrchestrator(repo Repository, store *state.Store, broadcaster Broadcaster, cd *countdown.Countdown, sessionPublicID, adminSecret string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:            repo,
		store:           store,
		broadcaster:     broadcaster,
		countdown:       cd,
		clock:           clockwork.NewRealClock(),
		sessionPublicID: sessionPublicID,
		adminSecret:     adminSecret,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Countdown returns the orchestrator's local countdown.
func (o *Orchestrator) Countdown() *countdown.Countdown {
	return o.countdown
}

// authorize fetches the session row and enforces the single-owner check.
// Fetching fresh rather than trusting the local copy makes the check hold
// even when a stale tab acts on an already-advanced session.
func (o *Orchestrator) authorize(ctx context.Context) (*models.Session, error) {
	sess, err := o.repo.GetSessionByPublicID(ctx, o.sessionPublicID)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if sess.AdminSecret != o.adminSecret {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// broadcast sends an event; failure is logged but never fails the
// transition. Clients that missed it converge through reconciliation.
func (o *Orchestrator) broadcast(ctx context.Context, eventType events.EventType, payload interface{}) {
	if err := o.broadcaster.Send(ctx, eventType, payload); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", o.sessionPublicID).
			Str("event_type", string(eventType)).
			Msg("broadcast failed; clients will reconcile")
	}
}

// StartSession moves the session from draft to lobby.
func (o *Orchestrator) StartSession(ctx context.Context) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionStatusDraft {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, models.SessionStatusLobby)
	}

	if err := o.repo.UpdateSessionStatus(ctx, sess.ID, models.SessionStatusLobby); err != nil {
		return fmt.Errorf("persist session status: %w", err)
	}

	lobby := models.SessionStatusLobby
	o.store.PatchSession(state.SessionPatch{Status: &lobby})
	o.broadcast(ctx, events.EventTypeSessionLobby, events.SessionLobbyPayload{})

	log.Info().Str("session_id", o.sessionPublicID).Msg("session opened to lobby")
	return nil
}

// BeginVoting moves the session from lobby to active, then auto-activates
// the first sequence item if the sequence is non-empty.
func (o *Orchestrator) BeginVoting(ctx context.Context) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionStatusLobby {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, models.SessionStatusActive)
	}

	if err := o.repo.UpdateSessionStatus(ctx, sess.ID, models.SessionStatusActive); err != nil {
		return fmt.Errorf("persist session status: %w", err)
	}

	active := models.SessionStatusActive
	o.store.PatchSession(state.SessionPatch{Status: &active})
	o.broadcast(ctx, events.EventTypeSessionActive, events.SessionActivePayload{})
	log.Info().Str("session_id", o.sessionPublicID).Msg("session voting began")

	items, err := o.repo.ListSessionItems(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list session items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	return o.activateItem(ctx, sess, items[0], "forward")
}

// activateItem drives the first/next sequence item: a batch activates as a
// batch, a slide just moves the presentation pointer.
func (o *Orchestrator) activateItem(ctx context.Context, sess *models.Session, item models.SessionItem, direction string) error {
	switch item.Kind {
	case models.SessionItemKindBatch:
		return o.activateBatch(ctx, sess, item.RefID, nil, item.ID)
	case models.SessionItemKindSlide:
		return o.activateSlide(ctx, sess, item, direction)
	default:
		return fmt.Errorf("unknown session item kind: %s", item.Kind)
	}
}

// EndSession moves any live session to ended, force-closing whatever is
// active first. Only the final session_ended broadcast is emitted; local
// question and batch state reflects closure before the ended view renders.
func (o *Orchestrator) EndSession(ctx context.Context) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}
	if sess.Status == models.SessionStatusEnded {
		return fmt.Errorf("%w: session already ended", ErrInvalidTransition)
	}

	if err := o.forceCloseActiveQuestion(ctx); err != nil {
		return err
	}
	if err := o.forceCloseActiveBatch(ctx); err != nil {
		return err
	}

	o.countdown.Stop()
	if err := o.clearTimer(ctx, sess.ID); err != nil {
		return err
	}

	if err := o.repo.UpdateSessionStatus(ctx, sess.ID, models.SessionStatusEnded); err != nil {
		return fmt.Errorf("persist session status: %w", err)
	}

	ended := models.SessionStatusEnded
	o.store.PatchSession(state.SessionPatch{Status: &ended})
	o.broadcast(ctx, events.EventTypeSessionEnded, events.SessionEndedPayload{})

	log.Info().Str("session_id", o.sessionPublicID).Msg("session ended")
	return nil
}

// ActivateQuestion opens voting on a standalone question, closing whatever
// was active first. A non-nil timerDuration persists an absolute deadline
// and starts the local countdown.
func (o *Orchestrator) ActivateQuestion(ctx context.Context, questionID uuid.UUID, timerDuration *time.Duration) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionStatusActive {
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Status)
	}

	target, err := o.repo.GetQuestion(ctx, questionID)
	if err != nil {
		return fmt.Errorf("fetch question: %w", err)
	}
	if !target.Status.CanTransition(models.QuestionStatusActive) {
		return fmt.Errorf("%w: question is %s", ErrInvalidTransition, target.Status)
	}

	// Mutual exclusion is procedural: close the other kind too.
	if err := o.forceCloseActiveQuestion(ctx); err != nil {
		return err
	}
	if err := o.forceCloseActiveBatch(ctx); err != nil {
		return err
	}

	if err := o.repo.UpdateQuestionStatus(ctx, questionID, models.QuestionStatusActive); err != nil {
		return fmt.Errorf("persist question status: %w", err)
	}
	activeStatus := models.QuestionStatusActive
	o.store.PatchQuestion(questionID, state.QuestionPatch{Status: &activeStatus})

	timerSeconds, err := o.applyTimer(ctx, sess.ID, timerDuration)
	if err != nil {
		return err
	}

	o.broadcast(ctx, events.EventTypeQuestionActivated, events.QuestionActivatedPayload{
		QuestionID:   questionID.String(),
		TimerSeconds: timerSeconds,
	})

	log.Info().
		Str("session_id", o.sessionPublicID).
		Str("question_id", questionID.String()).
		Msg("question activated")
	return nil
}

// CloseVoting closes an active question. voting_closed and results_revealed
// are emitted together: there is no externally visible closed-but-not-
// revealed state.
func (o *Orchestrator) CloseVoting(ctx context.Context, questionID uuid.UUID) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}

	o.countdown.Stop()
	if err := o.clearTimer(ctx, sess.ID); err != nil {
		return err
	}

	if err := o.repo.UpdateQuestionStatus(ctx, questionID, models.QuestionStatusClosed); err != nil {
		return fmt.Errorf("persist question status: %w", err)
	}
	closed := models.QuestionStatusClosed
	o.store.PatchQuestion(questionID, state.QuestionPatch{Status: &closed})

	o.broadcast(ctx, events.EventTypeVotingClosed, events.VotingClosedPayload{
		QuestionID: questionID.String(),
	})
	o.broadcast(ctx, events.EventTypeResultsRevealed, events.ResultsRevealedPayload{
		QuestionID: questionID.String(),
	})

	log.Info().
		Str("session_id", o.sessionPublicID).
		Str("question_id", questionID.String()).
		Msg("voting closed")
	return nil
}

// ActivateBatch opens voting on a batch of questions as a unit.
func (o *Orchestrator) ActivateBatch(ctx context.Context, batchID uuid.UUID, timerDuration *time.Duration) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}
	if sess.Status != models.SessionStatusActive {
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, sess.Status)
	}
	return o.activateBatch(ctx, sess, batchID, timerDuration, uuid.Nil)
}

func (o *Orchestrator) activateBatch(ctx context.Context, sess *models.Session, batchID uuid.UUID, timerDuration *time.Duration, itemID uuid.UUID) error {
	batch, err := o.repo.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("fetch batch: %w", err)
	}
	if !batch.Status.CanTransition(models.BatchStatusActive) {
		return fmt.Errorf("%w: batch is %s", ErrInvalidTransition, batch.Status)
	}

	// A batch being active excludes standalone questions and other batches.
	if err := o.forceCloseActiveQuestion(ctx); err != nil {
		return err
	}
	if err := o.forceCloseActiveBatch(ctx); err != nil {
		return err
	}

	if err := o.repo.UpdateBatchStatus(ctx, batchID, models.BatchStatusActive); err != nil {
		return fmt.Errorf("persist batch status: %w", err)
	}
	activeStatus := models.BatchStatusActive
	o.store.PatchBatch(batchID, state.BatchPatch{Status: &activeStatus})

	if itemID != uuid.Nil {
		if err := o.repo.SetActiveSessionItem(ctx, sess.ID, &itemID); err != nil {
			return fmt.Errorf("persist active session item: %w", err)
		}
		o.store.SetActiveItem(&itemID)
	}

	timerSeconds, err := o.applyTimer(ctx, sess.ID, timerDuration)
	if err != nil {
		return err
	}

	member, err := o.repo.ListQuestionsByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("list batch questions: %w", err)
	}
	questionIDs := make([]string, len(member))
	for i, q := range member {
		questionIDs[i] = q.ID.String()
	}

	o.broadcast(ctx, events.EventTypeBatchActivated, events.BatchActivatedPayload{
		BatchID:      batchID.String(),
		QuestionIDs:  questionIDs,
		TimerSeconds: timerSeconds,
	})

	log.Info().
		Str("session_id", o.sessionPublicID).
		Str("batch_id", batchID.String()).
		Int("questions", len(member)).
		Msg("batch activated")
	return nil
}

// CloseBatch closes an active batch and force-closes every member question,
// individually persisted so each shows in results.
func (o *Orchestrator) CloseBatch(ctx context.Context, batchID uuid.UUID) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}

	o.countdown.Stop()
	if err := o.clearTimer(ctx, sess.ID); err != nil {
		return err
	}

	if err := o.closeBatchQuestions(ctx, batchID); err != nil {
		return err
	}

	if err := o.repo.UpdateBatchStatus(ctx, batchID, models.BatchStatusClosed); err != nil {
		return fmt.Errorf("persist batch status: %w", err)
	}
	closed := models.BatchStatusClosed
	o.store.PatchBatch(batchID, state.BatchPatch{Status: &closed})

	o.broadcast(ctx, events.EventTypeBatchClosed, events.BatchClosedPayload{
		BatchID: batchID.String(),
	})

	log.Info().
		Str("session_id", o.sessionPublicID).
		Str("batch_id", batchID.String()).
		Msg("batch closed")
	return nil
}

// ActivateSlide moves the presentation to a slide item.
func (o *Orchestrator) ActivateSlide(ctx context.Context, itemID uuid.UUID, direction string) error {
	sess, err := o.authorize(ctx)
	if err != nil {
		return err
	}

	item, ok := o.store.Item(itemID)
	if !ok {
		items, err := o.repo.ListSessionItems(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list session items: %w", err)
		}
		o.store.ReplaceItems(items)
		item, ok = o.store.Item(itemID)
		if !ok {
			return fmt.Errorf("session item %s not found", itemID)
		}
	}
	return o.activateSlide(ctx, sess, item, direction)
}

func (o *Orchestrator) activateSlide(ctx context.Context, sess *models.Session, item models.SessionItem, direction string) error {
	if err := o.repo.SetActiveSessionItem(ctx, sess.ID, &item.ID); err != nil {
		return fmt.Errorf("persist active session item: %w", err)
	}
	o.store.SetActiveItem(&item.ID)

	o.broadcast(ctx, events.EventTypeSlideActivated, events.SlideActivatedPayload{
		ItemID:    item.ID.String(),
		Direction: direction,
	})
	return nil
}

// forceCloseActiveQuestion closes the currently active question, persisted
// and locally updated, with no broadcast. The latest store state is read
// here, immediately before the derived update, never captured earlier.
func (o *Orchestrator) forceCloseActiveQuestion(ctx context.Context) error {
	active, ok := o.store.ActiveQuestion()
	if !ok {
		return nil
	}
	if err := o.repo.UpdateQuestionStatus(ctx, active.ID, models.QuestionStatusClosed); err != nil {
		return fmt.Errorf("close active question: %w", err)
	}
	closed := models.QuestionStatusClosed
	o.store.PatchQuestion(active.ID, state.QuestionPatch{Status: &closed})
	return nil
}

// forceCloseActiveBatch closes the currently active batch and its member
// questions, persisted and locally updated, with no broadcast.
func (o *Orchestrator) forceCloseActiveBatch(ctx context.Context) error {
	active, ok := o.store.ActiveBatch()
	if !ok {
		return nil
	}
	if err := o.closeBatchQuestions(ctx, active.ID); err != nil {
		return err
	}
	if err := o.repo.UpdateBatchStatus(ctx, active.ID, models.BatchStatusClosed); err != nil {
		return fmt.Errorf("close active batch: %w", err)
	}
	closed := models.BatchStatusClosed
	o.store.PatchBatch(active.ID, state.BatchPatch{Status: &closed})
	return nil
}

// closeBatchQuestions persists closure of every not-yet-closed member
// question and mirrors it locally.
func (o *Orchestrator) closeBatchQuestions(ctx context.Context, batchID uuid.UUID) error {
	member, err := o.repo.ListQuestionsByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("list batch questions: %w", err)
	}
	closed := models.QuestionStatusClosed
	for _, q := range member {
		if q.Status == models.QuestionStatusClosed || q.Status == models.QuestionStatusRevealed {
			continue
		}
		if err := o.repo.UpdateQuestionStatus(ctx, q.ID, models.QuestionStatusClosed); err != nil {
			return fmt.Errorf("close batch question %s: %w", q.ID, err)
		}
		o.store.PatchQuestion(q.ID, state.QuestionPatch{Status: &closed})
	}
	return nil
}

// applyTimer persists the absolute deadline and starts the local countdown,
// or clears both when no duration is given. Returns the wire representation.
func (o *Orchestrator) applyTimer(ctx context.Context, sessionID uuid.UUID, timerDuration *time.Duration) (*int, error) {
	if timerDuration == nil || *timerDuration <= 0 {
		o.countdown.Stop()
		if err := o.clearTimer(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	expiresAt := o.clock.Now().Add(*timerDuration)
	if err := o.repo.UpdateSessionTimer(ctx, sessionID, &expiresAt); err != nil {
		return nil, fmt.Errorf("persist session timer: %w", err)
	}
	o.store.PatchSession(state.SessionPatch{TimerExpiresAt: &expiresAt})
	o.countdown.Start(*timerDuration)

	return events.TimerSecondsFromDuration(timerDuration), nil
}

// clearTimer removes the persisted deadline and its local mirror.
func (o *Orchestrator) clearTimer(ctx context.Context, sessionID uuid.UUID) error {
	if err := o.repo.UpdateSessionTimer(ctx, sessionID, nil); err != nil {
		return fmt.Errorf("clear session timer: %w", err)
	}
	o.store.PatchSession(state.SessionPatch{ClearTimer: true})
	return nil
}
