package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/gateway"
	"portal/pkg/conn"
)

func newMockSessions(t *testing.T) (*Sessions, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	client, err := conn.Open(pool, nil)
	require.NoError(t, err)
	s, err := NewSessions(client.DB(), "")
	require.NoError(t, err)
	return s, mock
}

func TestNewSessionsNilDB(t *testing.T) {
	_, err := NewSessions(nil, "x")
	assert.Error(t, err)
}

func TestSessionsLoad(t *testing.T) {
	s, mock := newMockSessions(t)
	rows := sqlmock.NewRows([]string{"name", "session_id", "sequence", "resume_url", "updated_at"}).
		AddRow(DefaultName, "abc123", int64(42), "wss://resume.test", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gateway_sessions" WHERE name = $1`)).
		WillReturnRows(rows)

	state, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", state.ID)
	assert.Equal(t, "wss://resume.test", state.ResumeURL)
	require.NotNil(t, state.Sequence)
	assert.Equal(t, int64(42), *state.Sequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionsLoadMissingRow(t *testing.T) {
	s, mock := newMockSessions(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gateway_sessions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "session_id", "sequence", "resume_url", "updated_at"}))

	state, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, state.Resumable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionsLoadError(t *testing.T) {
	s, mock := newMockSessions(t)
	boom := errors.New("connection refused")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gateway_sessions"`)).WillReturnError(boom)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSessionsSaveUpserts(t *testing.T) {
	s, mock := newMockSessions(t)
	seq := int64(42)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "gateway_sessions"`) + `.*ON CONFLICT \("name"\) DO UPDATE SET`).
		WithArgs(DefaultName, "abc123", int64(42), "wss://resume.test", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Save(context.Background(), gateway.SessionState{ID: "abc123", Sequence: &seq, ResumeURL: "wss://resume.test"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionsSaveCleared(t *testing.T) {
	s, mock := newMockSessions(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "gateway_sessions"`)).
		WithArgs(DefaultName, "", nil, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), gateway.SessionState{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
