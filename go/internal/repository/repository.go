// Package repository is the Postgres collaborator behind the orchestrator
// and reconciler. It owns row<->model conversion; status semantics live in
// the orchestrator, never here.
package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/repository/db"
	"github.com/mcdev12/livepoll/go/internal/sqlutil"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrVoteLockedIn means the participant locked their vote and later
	// edits are refused.
	ErrVoteLockedIn = errors.New("repository: vote is locked in")
)

// publicIDAlphabet avoids ambiguous characters in join codes.
const publicIDAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

type Repository struct {
	queries *db.Queries
	sqlDB   *sql.DB
}

// NewRepository creates a repository over an open database handle.
func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{
		queries: db.New(sqlDB),
		sqlDB:   sqlDB,
	}
}

type CreateSessionRequest struct {
	Title          string `json:"title"`
	ReasonsEnabled bool   `json:"reasons_enabled"`
	CreatedBy      string `json:"created_by"`
}

// CreateSession creates a draft session with a generated join code and admin
// secret. The secret is returned once here and never broadcast.
func (r *Repository) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	publicID, err := generatePublicID(10)
	if err != nil {
		return nil, fmt.Errorf("failed to generate public id: %w", err)
	}

	dbSession, err := r.queries.CreateSession(ctx, db.CreateSessionParams{
		ID:             uuid.New(),
		PublicID:       publicID,
		AdminSecret:    uuid.NewString(),
		Title:          req.Title,
		ReasonsEnabled: req.ReasonsEnabled,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return r.dbSessionToModel(dbSession), nil
}

// GetSession retrieves a session by ID.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	dbSession, err := r.queries.GetSession(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get session")
	}

	return r.dbSessionToModel(dbSession), nil
}

// GetSessionByPublicID retrieves a session by its join code.
func (r *Repository) GetSessionByPublicID(ctx context.Context, publicID string) (*models.Session, error) {
	dbSession, err := r.queries.GetSessionByPublicID(ctx, publicID)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get session by public id")
	}

	return r.dbSessionToModel(dbSession), nil
}

// UpdateSessionStatus persists a session status transition.
func (r *Repository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) error {
	err := r.queries.UpdateSessionStatus(ctx, db.UpdateSessionStatusParams{
		ID:     id,
		Status: string(status),
	})
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// UpdateSessionTimer persists the absolute countdown deadline; nil clears it.
func (r *Repository) UpdateSessionTimer(ctx context.Context, id uuid.UUID, expiresAt *time.Time) error {
	err := r.queries.UpdateSessionTimer(ctx, db.UpdateSessionTimerParams{
		ID:             id,
		TimerExpiresAt: sqlutil.ToSqlTime(expiresAt),
	})
	if err != nil {
		return fmt.Errorf("failed to update session timer: %w", err)
	}
	return nil
}

// SetActiveSessionItem persists the presentation pointer; nil clears it.
func (r *Repository) SetActiveSessionItem(ctx context.Context, sessionID uuid.UUID, itemID *uuid.UUID) error {
	err := r.queries.SetActiveSessionItem(ctx, db.SetActiveSessionItemParams{
		ID:           sessionID,
		ActiveItemID: sqlutil.ToNullUUID(itemID),
	})
	if err != nil {
		return fmt.Errorf("failed to set active session item: %w", err)
	}
	return nil
}

// DeleteSession deletes a session that has not left draft. Deleting a live
// or ended session is refused.
func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	affected, err := r.queries.DeleteDraftSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to delete session %s: %w", id, ErrNotFound)
	}
	return nil
}

type CreateQuestionRequest struct {
	SessionID uuid.UUID           `json:"session_id"`
	BatchID   *uuid.UUID          `json:"batch_id,omitempty"`
	Type      models.QuestionType `json:"type"`
	Prompt    string              `json:"prompt"`
	Options   []string            `json:"options,omitempty"`
	Position  int                 `json:"position"`
	Anonymous bool                `json:"anonymous"`
}

// CreateQuestion creates a pending question.
func (r *Repository) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*models.Question, error) {
	if req.Type == models.QuestionTypeMultipleChoice && len(req.Options) < 2 {
		return nil, fmt.Errorf("multiple choice question needs at least two options, got %d", len(req.Options))
	}

	options, err := optionsToRaw(req.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal question options: %w", err)
	}

	dbQuestion, err := r.queries.CreateQuestion(ctx, db.CreateQuestionParams{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		BatchID:   sqlutil.ToNullUUID(req.BatchID),
		Type:      string(req.Type),
		Prompt:    req.Prompt,
		Options:   options,
		Position:  int32(req.Position),
		Anonymous: req.Anonymous,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	return r.dbQuestionToModel(dbQuestion), nil
}

// GetQuestion retrieves a question by ID.
func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	dbQuestion, err := r.queries.GetQuestion(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get question")
	}

	return r.dbQuestionToModel(dbQuestion), nil
}

// ListQuestionsBySession retrieves all questions ordered by position.
func (r *Repository) ListQuestionsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	dbQuestions, err := r.queries.ListQuestionsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	return r.dbQuestionsToModels(dbQuestions), nil
}

// ListQuestionsByStatus retrieves a session's questions filtered by status.
func (r *Repository) ListQuestionsByStatus(ctx context.Context, sessionID uuid.UUID, status models.QuestionStatus) ([]models.Question, error) {
	dbQuestions, err := r.queries.ListQuestionsByStatus(ctx, db.ListQuestionsByStatusParams{
		SessionID: sessionID,
		Status:    string(status),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list questions by status: %w", err)
	}

	return r.dbQuestionsToModels(dbQuestions), nil
}

// ListQuestionsByBatch retrieves a batch's member questions ordered by position.
func (r *Repository) ListQuestionsByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Question, error) {
	dbQuestions, err := r.queries.ListQuestionsByBatch(ctx, sqlutil.ToNullUUID(&batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to list batch questions: %w", err)
	}

	return r.dbQuestionsToModels(dbQuestions), nil
}

// UpdateQuestionStatus persists a question status transition.
func (r *Repository) UpdateQuestionStatus(ctx context.Context, id uuid.UUID, status models.QuestionStatus) error {
	err := r.queries.UpdateQuestionStatus(ctx, db.UpdateQuestionStatusParams{
		ID:     id,
		Status: string(status),
	})
	if err != nil {
		return fmt.Errorf("failed to update question status: %w", err)
	}
	return nil
}

// ReorderQuestions assigns contiguous positions following the given order,
// all in one transaction.
func (r *Repository) ReorderQuestions(ctx context.Context, orderedIDs []uuid.UUID) error {
	err := sqlutil.Run(ctx, r.sqlDB,
		func(tx *sql.Tx) *db.Queries { return r.queries.WithTx(tx) },
		func(q *db.Queries) error {
			for i, id := range orderedIDs {
				err := q.UpdateQuestionPosition(ctx, db.UpdateQuestionPositionParams{
					ID:       id,
					Position: int32(i),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to reorder questions: %w", err)
	}
	return nil
}

// DeleteQuestion deletes a question by ID.
func (r *Repository) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteQuestion(ctx, id); err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

type CreateBatchRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
}

// CreateBatch creates a pending batch.
func (r *Repository) CreateBatch(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	dbBatch, err := r.queries.CreateBatch(ctx, db.CreateBatchParams{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		Title:     req.Title,
		Position:  int32(req.Position),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	return r.dbBatchToModel(dbBatch), nil
}

// GetBatch retrieves a batch by ID.
func (r *Repository) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	dbBatch, err := r.queries.GetBatch(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get batch")
	}

	return r.dbBatchToModel(dbBatch), nil
}

// ListBatchesBySession retrieves all batches ordered by position.
func (r *Repository) ListBatchesBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Batch, error) {
	dbBatches, err := r.queries.ListBatchesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	batches := make([]models.Batch, len(dbBatches))
	for i, dbBatch := range dbBatches {
		batches[i] = *r.dbBatchToModel(dbBatch)
	}
	return batches, nil
}

// UpdateBatchStatus persists a batch status transition.
func (r *Repository) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status models.BatchStatus) error {
	err := r.queries.UpdateBatchStatus(ctx, db.UpdateBatchStatusParams{
		ID:     id,
		Status: string(status),
	})
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	return nil
}

// DeleteBatch deletes a batch; member questions detach rather than delete.
func (r *Repository) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteBatch(ctx, id); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

type CreateSlideRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Title     string    `json:"title"`
	ImagePath *string   `json:"image_path,omitempty"`
}

// CreateSlide creates a presentation slide.
func (r *Repository) CreateSlide(ctx context.Context, req CreateSlideRequest) (*models.Slide, error) {
	dbSlide, err := r.queries.CreateSlide(ctx, db.CreateSlideParams{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		Title:     req.Title,
		ImagePath: sqlutil.ToSqlString(req.ImagePath),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create slide: %w", err)
	}

	return r.dbSlideToModel(dbSlide), nil
}

// GetSlide retrieves a slide by ID.
func (r *Repository) GetSlide(ctx context.Context, id uuid.UUID) (*models.Slide, error) {
	dbSlide, err := r.queries.GetSlide(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "failed to get slide")
	}

	return r.dbSlideToModel(dbSlide), nil
}

// SlideImageExists reports whether any slide in the session references the
// given image path.
func (r *Repository) SlideImageExists(ctx context.Context, sessionID uuid.UUID, imagePath string) (bool, error) {
	exists, err := r.queries.SlideImageExists(ctx, db.SlideImageExistsParams{
		SessionID: sessionID,
		ImagePath: sqlutil.ToSqlString(&imagePath),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check slide image: %w", err)
	}
	return exists, nil
}

type CreateSessionItemRequest struct {
	SessionID uuid.UUID              `json:"session_id"`
	Kind      models.SessionItemKind `json:"kind"`
	RefID     uuid.UUID              `json:"ref_id"`
	Position  int                    `json:"position"`
}

// CreateSessionItem appends a batch or slide to the presentation sequence.
func (r *Repository) CreateSessionItem(ctx context.Context, req CreateSessionItemRequest) (*models.SessionItem, error) {
	dbItem, err := r.queries.CreateSessionItem(ctx, db.CreateSessionItemParams{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		Kind:      string(req.Kind),
		RefID:     req.RefID,
		Position:  int32(req.Position),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session item: %w", err)
	}

	return r.dbItemToModel(dbItem), nil
}

// ListSessionItems retrieves the presentation sequence ordered by position.
func (r *Repository) ListSessionItems(ctx context.Context, sessionID uuid.UUID) ([]models.SessionItem, error) {
	dbItems, err := r.queries.ListSessionItems(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session items: %w", err)
	}

	items := make([]models.SessionItem, len(dbItems))
	for i, dbItem := range dbItems {
		items[i] = *r.dbItemToModel(dbItem)
	}
	return items, nil
}

// ReorderSessionItems assigns contiguous positions following the given
// order, all in one transaction.
func (r *Repository) ReorderSessionItems(ctx context.Context, orderedIDs []uuid.UUID) error {
	err := sqlutil.Run(ctx, r.sqlDB,
		func(tx *sql.Tx) *db.Queries { return r.queries.WithTx(tx) },
		func(q *db.Queries) error {
			for i, id := range orderedIDs {
				err := q.UpdateSessionItemPosition(ctx, db.UpdateSessionItemPositionParams{
					ID:       id,
					Position: int32(i),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to reorder session items: %w", err)
	}
	return nil
}

// DeleteSessionItem removes an item from the presentation sequence.
func (r *Repository) DeleteSessionItem(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteSessionItem(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session item: %w", err)
	}
	return nil
}

type UpsertVoteRequest struct {
	QuestionID    uuid.UUID `json:"question_id"`
	ParticipantID string    `json:"participant_id"`
	Value         string    `json:"value"`
	Reason        *string   `json:"reason,omitempty"`
	DisplayName   *string   `json:"display_name,omitempty"`
	LockedIn      bool      `json:"locked_in"`
}

// UpsertVote writes one vote per (question, participant); later votes update
// the existing row. A locked-in vote refuses further edits.
func (r *Repository) UpsertVote(ctx context.Context, req UpsertVoteRequest) (*models.Vote, error) {
	dbVote, err := r.queries.UpsertVote(ctx, db.UpsertVoteParams{
		ID:            uuid.New(),
		QuestionID:    req.QuestionID,
		ParticipantID: req.ParticipantID,
		Value:         req.Value,
		Reason:        sqlutil.ToSqlString(req.Reason),
		DisplayName:   sqlutil.ToSqlString(req.DisplayName),
		LockedIn:      req.LockedIn,
	})
	if err != nil {
		// The upsert returns no row when the conflict update was suppressed
		// by the locked_in guard.
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVoteLockedIn
		}
		return nil, fmt.Errorf("failed to upsert vote: %w", err)
	}

	return r.dbVoteToModel(dbVote), nil
}

// ListVotesByQuestion retrieves all votes for a question in arrival order.
func (r *Repository) ListVotesByQuestion(ctx context.Context, questionID uuid.UUID) ([]models.Vote, error) {
	dbVotes, err := r.queries.ListVotesByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}

	votes := make([]models.Vote, len(dbVotes))
	for i, dbVote := range dbVotes {
		votes[i] = *r.dbVoteToModel(dbVote)
	}
	return votes, nil
}

// VoteCount is one value's tally for a question.
type VoteCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CountVotesByValue tallies a question's votes grouped by value.
func (r *Repository) CountVotesByValue(ctx context.Context, questionID uuid.UUID) ([]VoteCount, error) {
	rows, err := r.queries.CountVotesByValue(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count votes: %w", err)
	}

	counts := make([]VoteCount, len(rows))
	for i, row := range rows {
		counts[i] = VoteCount{Value: row.Value, Count: int(row.Count)}
	}
	return counts, nil
}

func (r *Repository) dbSessionToModel(dbSession db.Session) *models.Session {
	return &models.Session{
		ID:             dbSession.ID,
		PublicID:       dbSession.PublicID,
		AdminSecret:    dbSession.AdminSecret,
		Title:          dbSession.Title,
		Status:         models.SessionStatus(dbSession.Status),
		ReasonsEnabled: dbSession.ReasonsEnabled,
		TimerExpiresAt: sqlutil.FromSqlTime(dbSession.TimerExpiresAt),
		ActiveItemID:   sqlutil.FromNullUUID(dbSession.ActiveItemID),
		CreatedBy:      dbSession.CreatedBy,
		CreatedAt:      dbSession.CreatedAt,
		UpdatedAt:      dbSession.UpdatedAt,
	}
}

func (r *Repository) dbQuestionToModel(dbQuestion db.Question) *models.Question {
	var options []string
	if dbQuestion.Options.Valid {
		if err := json.Unmarshal(dbQuestion.Options.RawMessage, &options); err != nil {
			options = nil
		}
	}

	return &models.Question{
		ID:        dbQuestion.ID,
		SessionID: dbQuestion.SessionID,
		BatchID:   sqlutil.FromNullUUID(dbQuestion.BatchID),
		Type:      models.QuestionType(dbQuestion.Type),
		Prompt:    dbQuestion.Prompt,
		Options:   options,
		Position:  int(dbQuestion.Position),
		Anonymous: dbQuestion.Anonymous,
		Status:    models.QuestionStatus(dbQuestion.Status),
		CreatedAt: dbQuestion.CreatedAt,
		UpdatedAt: dbQuestion.UpdatedAt,
	}
}

func (r *Repository) dbQuestionsToModels(dbQuestions []db.Question) []models.Question {
	questions := make([]models.Question, len(dbQuestions))
	for i, dbQuestion := range dbQuestions {
		questions[i] = *r.dbQuestionToModel(dbQuestion)
	}
	return questions
}

func (r *Repository) dbBatchToModel(dbBatch db.Batch) *models.Batch {
	return &models.Batch{
		ID:        dbBatch.ID,
		SessionID: dbBatch.SessionID,
		Title:     dbBatch.Title,
		Position:  int(dbBatch.Position),
		Status:    models.BatchStatus(dbBatch.Status),
		CreatedAt: dbBatch.CreatedAt,
		UpdatedAt: dbBatch.UpdatedAt,
	}
}

func (r *Repository) dbSlideToModel(dbSlide db.Slide) *models.Slide {
	return &models.Slide{
		ID:        dbSlide.ID,
		SessionID: dbSlide.SessionID,
		Title:     dbSlide.Title,
		ImagePath: sqlutil.FromSqlString(dbSlide.ImagePath, ""),
		CreatedAt: dbSlide.CreatedAt,
		UpdatedAt: dbSlide.UpdatedAt,
	}
}

func (r *Repository) dbItemToModel(dbItem db.SessionItem) *models.SessionItem {
	return &models.SessionItem{
		ID:        dbItem.ID,
		SessionID: dbItem.SessionID,
		Kind:      models.SessionItemKind(dbItem.Kind),
		RefID:     dbItem.RefID,
		Position:  int(dbItem.Position),
		CreatedAt: dbItem.CreatedAt,
		UpdatedAt: dbItem.UpdatedAt,
	}
}

func (r *Repository) dbVoteToModel(dbVote db.Vote) *models.Vote {
	return &models.Vote{
		ID:            dbVote.ID,
		QuestionID:    dbVote.QuestionID,
		ParticipantID: dbVote.ParticipantID,
		Value:         dbVote.Value,
		Reason:        sqlutil.FromSqlStringPtr(dbVote.Reason),
		DisplayName:   sqlutil.FromSqlStringPtr(dbVote.DisplayName),
		LockedIn:      dbVote.LockedIn,
		CreatedAt:     dbVote.CreatedAt,
		UpdatedAt:     dbVote.UpdatedAt,
	}
}

func wrapNotFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func generatePublicID(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = publicIDAlphabet[int(b)%len(publicIDAlphabet)]
	}
	return string(buf), nil
}

func optionsToRaw(options []string) (pqtype.NullRawMessage, error) {
	if len(options) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
