package device

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/eleven-am/wearable-voice/internal/shared"
	"gorm.io/gorm"
)

const keyPrefixLen = 12

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Device{})
}

// Create registers a device and returns the one-time plaintext key.
func (s *Store) Create(ctx context.Context, dev *Device) (secret string, err error) {
	if dev.ID == "" {
		dev.ID = shared.NewID("dev_")
	}

	secret, err = generateSecret()
	if err != nil {
		return "", err
	}
	dev.KeyPrefix = secret[:keyPrefixLen]
	dev.KeyHash = hashSecret(secret)

	if err := s.db.WithContext(ctx).Create(dev).Error; err != nil {
		return "", err
	}
	return secret, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Device, error) {
	var dev Device
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &dev, err
}

func (s *Store) List(ctx context.Context) ([]*Device, error) {
	var devices []*Device
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&devices).Error
	return devices, err
}

// Validate resolves an API key to its device. Lookup is by prefix; the full
// secret is then checked against the stored hash.
func (s *Store) Validate(ctx context.Context, secret string) (*Device, error) {
	if len(secret) < keyPrefixLen {
		return nil, shared.ErrUnauthorized
	}

	var dev Device
	err := s.db.WithContext(ctx).Where("key_prefix = ?", secret[:keyPrefixLen]).First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if dev.KeyHash != hashSecret(secret) {
		return nil, shared.ErrUnauthorized
	}
	return &dev, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Device{}).Where("id = ?", id).
		Update("last_seen_at", &now).Error
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Device{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "wv_" + hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
