package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/realtime"
)

type fakeSessionReader struct {
	session *models.Session
}

func (r *fakeSessionReader) GetSessionByPublicID(_ context.Context, publicID string) (*models.Session, error) {
	if r.session == nil || r.session.PublicID != publicID {
		return nil, fmt.Errorf("session %s not found", publicID)
	}
	cp := *r.session
	return &cp, nil
}

type nilTransport struct{}

func (nilTransport) Channel(string) (realtime.Channel, error) {
	return nil, fmt.Errorf("no transport in test")
}

func newTestHandler(status models.SessionStatus) *WebSocketHandler {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	sessions := &fakeSessionReader{
		session: &models.Session{PublicID: "demo-session", Status: status},
	}
	return NewWebSocketHandler(cm, nilTransport{}, sessions)
}

func doRequest(h *WebSocketHandler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	h.HandleSessionConnection(rec, req)
	return rec
}

func TestHandleSessionConnectionRequiresSessionID(t *testing.T) {
	h := newTestHandler(models.SessionStatusLobby)

	rec := doRequest(h, "/ws?participant_id=p1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionConnectionRequiresParticipantID(t *testing.T) {
	h := newTestHandler(models.SessionStatusLobby)

	rec := doRequest(h, "/ws?session_id=demo-session")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionConnectionRejectsUnknownRole(t *testing.T) {
	h := newTestHandler(models.SessionStatusLobby)

	rec := doRequest(h, "/ws?session_id=demo-session&participant_id=p1&role=spectator")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionConnectionUnknownSession(t *testing.T) {
	h := newTestHandler(models.SessionStatusLobby)

	rec := doRequest(h, "/ws?session_id=nope&participant_id=p1")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSessionConnectionRefusesDraftForParticipants(t *testing.T) {
	h := newTestHandler(models.SessionStatusDraft)

	rec := doRequest(h, "/ws?session_id=demo-session&participant_id=p1")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(models.SessionStatusLobby)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	h.HandleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPresenceRoleMapping(t *testing.T) {
	assert.Equal(t, "participant", string(presenceRole("participant")))
	assert.Equal(t, "admin", string(presenceRole("admin")))
	assert.Equal(t, "admin", string(presenceRole("presentation")), "screens do not count as participants")
}
