package utterance

import (
	"context"
	"errors"

	"github.com/eleven-am/wearable-voice/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Utterance{})
}

func (s *Store) Create(ctx context.Context, u *Utterance) error {
	if u.ID == "" {
		u.ID = shared.NewID("utt_")
	}
	if u.Status == "" {
		u.Status = StatusPending
	}
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Utterance, error) {
	var u Utterance
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &u, err
}

func (s *Store) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*Utterance, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var utterances []*Utterance
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at desc").
		Limit(limit).
		Find(&utterances).Error
	return utterances, err
}

func (s *Store) MarkTranscribed(ctx context.Context, id, text string) error {
	return s.update(ctx, id, map[string]any{"status": StatusTranscribed, "text": text})
}

func (s *Store) MarkDelivered(ctx context.Context, id, reply string) error {
	return s.update(ctx, id, map[string]any{"status": StatusDelivered, "reply": reply})
}

func (s *Store) MarkDiscarded(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, map[string]any{"status": StatusDiscarded, "error": reason})
}

func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, map[string]any{"status": StatusFailed, "error": reason})
}

func (s *Store) update(ctx context.Context, id string, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&Utterance{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
