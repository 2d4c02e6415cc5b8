package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/countdown"
	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/realtime"
	"github.com/mcdev12/livepoll/go/internal/realtime/events"
	"github.com/mcdev12/livepoll/go/internal/state"
)

// View is the top-level screen a participant or presentation client shows.
type View string

const (
	// ViewLobby shows the pre-voting lobby.
	ViewLobby View = "lobby"
	// ViewVoting shows the active question or batch.
	ViewVoting View = "voting"
	// ViewWaiting shows "waiting for the next question".
	ViewWaiting View = "waiting"
	// ViewReviewing shows "voting closed" while the admin reviews.
	ViewReviewing View = "reviewing"
	// ViewResults shows "results are on the main screen". Participants
	// never see charts; this only changes the waiting message.
	ViewResults View = "results"
	// ViewEnded shows the final view.
	ViewEnded View = "ended"
)

// ReadRepository defines what reconciliation needs from the persistent
// store. Read-only: non-admin clients never write status.
type ReadRepository interface {
	GetSessionByPublicID(ctx context.Context, publicID string) (*models.Session, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	ListQuestionsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
	ListQuestionsByStatus(ctx context.Context, sessionID uuid.UUID, status models.QuestionStatus) ([]models.Question, error)
	ListBatchesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Batch, error)
	ListSessionItems(ctx context.Context, sessionID uuid.UUID) ([]models.SessionItem, error)
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock replaces the wall clock used to restore countdowns
// from persisted absolute deadlines.
func WithReconcilerClock(clock clockwork.Clock) ReconcilerOption {
	return func(r *Reconciler) {
		r.clock = clock
	}
}

// Reconciler re-derives a non-admin client's state from the persistent
// store instead of trusting buffered events. It runs on initial load and
// whenever the channel recovers from a degraded state; broadcast handlers
// keep the client current in between.
type Reconciler struct {
	repo      ReadRepository
	store     *state.Store
	countdown *countdown.Countdown
	clock     clockwork.Clock

	sessionPublicID string

	mu           sync.Mutex
	view         View
	onViewChange func(View)
}

// NewReconciler creates the recovery logic for one non-admin client.
func NewReconciler(repo ReadRepository, store *state.Store, cd *countdown.Countdown, sessionPublicID string, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		repo:            repo,
		store:           store,
		countdown:       cd,
		clock:           clockwork.NewRealClock(),
		sessionPublicID: sessionPublicID,
		view:            ViewLobby,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// View returns the current top-level view.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// OnViewChange registers an observer of view transitions.
func (r *Reconciler) OnViewChange(fn func(View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onViewChange = fn
}

func (r *Reconciler) setView(v View) {
	r.mu.Lock()
	if r.view == v {
		r.mu.Unlock()
		return
	}
	r.view = v
	fn := r.onViewChange
	r.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

// Bind wires the reconciler to a channel manager: it re-runs on every
// recovery from a degraded state, but not on the first successful connect,
// which the initial-load reconcile already covered.
func (r *Reconciler) Bind(ctx context.Context, m *realtime.Manager) {
	m.OnStatusChange(func(old, new realtime.Status) {
		if new != realtime.StatusConnected {
			return
		}
		if old != realtime.StatusReconnecting {
			// Initial connect; nothing was missed.
			return
		}
		if err := r.Reconcile(ctx); err != nil {
			log.Error().
				Err(err).
				Str("session_id", r.sessionPublicID).
				Msg("reconcile after reconnect failed")
		}
	})
}

// Reconcile re-fetches the session row and rebuilds local state from it.
// Run on initial load and after every reconnect.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	sess, err := r.repo.GetSessionByPublicID(ctx, r.sessionPublicID)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	r.store.SetSession(sess)
	r.store.SetActiveItem(sess.ActiveItemID)

	switch sess.Status {
	case models.SessionStatusEnded:
		questions, err := r.repo.ListQuestionsBySession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		r.store.ReplaceQuestions(questions)
		r.countdown.Stop()
		r.setView(ViewEnded)

	case models.SessionStatusActive:
		if err := r.reconcileActive(ctx, sess); err != nil {
			return err
		}

	default:
		// Draft or lobby: no question can be active yet.
		r.store.ReplaceQuestions(nil)
		r.countdown.Stop()
		r.setView(ViewLobby)
	}

	log.Debug().
		Str("session_id", r.sessionPublicID).
		Str("status", string(sess.Status)).
		Str("view", string(r.view)).
		Msg("reconciled from persistent store")
	return nil
}

// reconcileActive handles the active-session branch: voting if exactly one
// question (or a batch) is active by the status filter, waiting otherwise.
func (r *Reconciler) reconcileActive(ctx context.Context, sess *models.Session) error {
	questions, err := r.repo.ListQuestionsBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	r.store.ReplaceQuestions(questions)

	batches, err := r.repo.ListBatchesBySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}
	r.store.ReplaceBatches(batches)

	items, err := r.repo.ListSessionItems(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list session items: %w", err)
	}
	r.store.ReplaceItems(items)

	voting := false
	if _, ok := r.store.ActiveQuestion(); ok {
		voting = true
	}
	if _, ok := r.store.ActiveBatch(); ok {
		voting = true
	}

	if !voting {
		r.countdown.Stop()
		r.setView(ViewWaiting)
		return nil
	}

	r.restoreCountdown(sess.TimerExpiresAt)
	r.setView(ViewVoting)
	return nil
}

// restoreCountdown resumes a countdown from the persisted absolute
// deadline, or stops it when the deadline is absent or already past.
func (r *Reconciler) restoreCountdown(expiresAt *time.Time) {
	if expiresAt == nil {
		r.countdown.Stop()
		return
	}
	remaining := expiresAt.Sub(r.clock.Now())
	if remaining <= 0 {
		r.countdown.Stop()
		return
	}
	r.countdown.Start(remaining)
}

// RegisterHandlers mirrors each broadcast 1:1 onto local state. Intended
// for the channel manager's Setup callback so every handler exists before
// the subscribe handshake.
func (r *Reconciler) RegisterHandlers(ctx context.Context, ch realtime.Channel) {
	ch.OnBroadcast(events.EventTypeSessionLobby, func(*events.Envelope) {
		lobby := models.SessionStatusLobby
		r.store.PatchSession(state.SessionPatch{Status: &lobby})
		r.setView(ViewLobby)
	})

	ch.OnBroadcast(events.EventTypeSessionActive, func(*events.Envelope) {
		active := models.SessionStatusActive
		r.store.PatchSession(state.SessionPatch{Status: &active})
		r.setView(ViewWaiting)
	})

	ch.OnBroadcast(events.EventTypeSessionEnded, func(*events.Envelope) {
		ended := models.SessionStatusEnded
		r.store.PatchSession(state.SessionPatch{Status: &ended, ClearTimer: true})
		r.countdown.Stop()
		r.store.SetActiveItem(nil)
		r.setView(ViewEnded)
	})

	ch.OnBroadcast(events.EventTypeQuestionActivated, func(env *events.Envelope) {
		payload, err := parsePayload[events.QuestionActivatedPayload](env)
		if err != nil {
			return
		}
		questionID, err := uuid.Parse(payload.QuestionID)
		if err != nil {
			log.Error().Err(err).Str("question_id", payload.QuestionID).Msg("bad question id in broadcast")
			return
		}

		// Refetch rather than trusting the event to carry the row.
		question, err := r.repo.GetQuestion(ctx, questionID)
		if err != nil {
			log.Error().Err(err).Str("question_id", payload.QuestionID).Msg("fetch activated question failed")
			return
		}
		r.store.UpsertQuestion(*question)

		r.applyTimerSeconds(payload.TimerSeconds)
		r.setView(ViewVoting)
	})

	ch.OnBroadcast(events.EventTypeVotingClosed, func(env *events.Envelope) {
		payload, err := parsePayload[events.VotingClosedPayload](env)
		if err != nil {
			return
		}
		r.patchQuestionClosed(payload.QuestionID)
		r.countdown.Stop()
		r.setView(ViewReviewing)
	})

	ch.OnBroadcast(events.EventTypeResultsRevealed, func(env *events.Envelope) {
		if _, err := parsePayload[events.ResultsRevealedPayload](env); err != nil {
			return
		}
		r.setView(ViewResults)
	})

	ch.OnBroadcast(events.EventTypeBatchActivated, func(env *events.Envelope) {
		payload, err := parsePayload[events.BatchActivatedPayload](env)
		if err != nil {
			return
		}
		batchID, err := uuid.Parse(payload.BatchID)
		if err != nil {
			log.Error().Err(err).Str("batch_id", payload.BatchID).Msg("bad batch id in broadcast")
			return
		}

		activeStatus := models.BatchStatusActive
		r.store.PatchBatch(batchID, state.BatchPatch{Status: &activeStatus})
		for _, idStr := range payload.QuestionIDs {
			questionID, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			question, err := r.repo.GetQuestion(ctx, questionID)
			if err != nil {
				log.Error().Err(err).Str("question_id", idStr).Msg("fetch batch question failed")
				continue
			}
			r.store.UpsertQuestion(*question)
		}

		r.applyTimerSeconds(payload.TimerSeconds)
		r.setView(ViewVoting)
	})

	ch.OnBroadcast(events.EventTypeBatchClosed, func(env *events.Envelope) {
		payload, err := parsePayload[events.BatchClosedPayload](env)
		if err != nil {
			return
		}
		batchID, err := uuid.Parse(payload.BatchID)
		if err != nil {
			return
		}

		closedStatus := models.BatchStatusClosed
		r.store.PatchBatch(batchID, state.BatchPatch{Status: &closedStatus})
		closed := models.QuestionStatusClosed
		for _, q := range r.store.QuestionsInBatch(batchID) {
			r.store.PatchQuestion(q.ID, state.QuestionPatch{Status: &closed})
		}
		r.countdown.Stop()
		r.setView(ViewReviewing)
	})

	ch.OnBroadcast(events.EventTypeSlideActivated, func(env *events.Envelope) {
		payload, err := parsePayload[events.SlideActivatedPayload](env)
		if err != nil {
			return
		}
		itemID, err := uuid.Parse(payload.ItemID)
		if err != nil {
			return
		}
		r.store.SetActiveItem(&itemID)
	})
}

// applyTimerSeconds starts the local countdown from the carried duration.
// Zero or absent stops rather than starts.
func (r *Reconciler) applyTimerSeconds(timerSeconds *int) {
	if timerSeconds == nil || *timerSeconds <= 0 {
		r.countdown.Stop()
		return
	}
	r.countdown.Start(time.Duration(*timerSeconds) * time.Second)
}

// patchQuestionClosed marks a question closed locally; unknown ids are a
// no-op by store contract.
func (r *Reconciler) patchQuestionClosed(idStr string) {
	questionID, err := uuid.Parse(idStr)
	if err != nil {
		return
	}
	closed := models.QuestionStatusClosed
	r.store.PatchQuestion(questionID, state.QuestionPatch{Status: &closed})
}

// parsePayload decodes one typed payload, logging rather than failing on
// malformed input: a bad broadcast must never crash a client.
func parsePayload[T any](env *events.Envelope) (T, error) {
	var payload T
	parsed, err := events.ParsePayload(env)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(env.Type)).Msg("parse broadcast payload failed")
		return payload, err
	}
	typed, ok := parsed.(T)
	if !ok {
		err := fmt.Errorf("unexpected payload type %T", parsed)
		log.Error().Err(err).Str("event_type", string(env.Type)).Msg("parse broadcast payload failed")
		return payload, err
	}
	return typed, nil
}
