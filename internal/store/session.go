// Package store persists gateway session checkpoints in PostgreSQL so a
// restarted process can resume its session.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portal/internal/gateway"
	"portal/pkg/exception"
)

// DefaultName keys the checkpoint row of a single-session process.
const DefaultName = "default"

type sessionRecord struct {
	Name      string    `gorm:"column:name;primaryKey;size:64"`
	SessionID string    `gorm:"column:session_id;size:128"`
	Sequence  *int64    `gorm:"column:sequence"`
	ResumeURL string    `gorm:"column:resume_url;size:512"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (sessionRecord) TableName() string {
	return "gateway_sessions"
}

// Sessions is a gateway.SessionStore backed by one row per name.
type Sessions struct {
	db   *gorm.DB
	name string
}

var _ gateway.SessionStore = (*Sessions)(nil)

// NewSessions returns a store keyed by name, DefaultName when empty.
func NewSessions(db *gorm.DB, name string) (*Sessions, error) {
	if db == nil {
		return nil, exception.ErrNilStore
	}
	if name == "" {
		name = DefaultName
	}
	return &Sessions{db: db, name: name}, nil
}

// Migrate creates or updates the checkpoint table.
func (s *Sessions) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&sessionRecord{})
}

// Load returns the stored checkpoint, an empty state when there is none.
func (s *Sessions) Load(ctx context.Context) (gateway.SessionState, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("name = ?", s.name).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gateway.SessionState{}, nil
	}
	if err != nil {
		return gateway.SessionState{}, err
	}
	return gateway.SessionState{
		ID:        rec.SessionID,
		Sequence:  rec.Sequence,
		ResumeURL: rec.ResumeURL,
	}, nil
}

// Save upserts the checkpoint. An empty state is stored as a cleared row.
func (s *Sessions) Save(ctx context.Context, state gateway.SessionState) error {
	rec := sessionRecord{
		Name:      s.name,
		SessionID: state.ID,
		Sequence:  state.Sequence,
		ResumeURL: state.ResumeURL,
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_id", "sequence", "resume_url", "updated_at"}),
		}).
		Create(&rec).Error
}
