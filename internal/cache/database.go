package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/smartpost/internal/models"
)

// DatabaseRateStore keeps rate limiting counters in the primary SQL database so that
// several API instances share one budget per client.
type DatabaseRateStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseRateStore constructs a database-backed rate store.
func NewDatabaseRateStore(db *gorm.DB) *DatabaseRateStore {
	if db == nil {
		return nil
	}
	return &DatabaseRateStore{db: db, clock: time.Now}
}

// Increment bumps the counter for key and reports the count within the current window.
func (s *DatabaseRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database rate store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock().UTC()
	var entry models.RateCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(keyEquals(key)).
			Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = models.RateCounter{
				Key:       key,
				Count:     1,
				ExpiresAt: now.Add(window),
			}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}

		if !now.Before(entry.ExpiresAt) {
			entry.Count = 1
			entry.ExpiresAt = now.Add(window)
		} else {
			entry.Count++
		}
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return entry.Count, entry.ExpiresAt.Sub(now), nil
}

// PurgeExpired deletes counters whose window has closed.
func (s *DatabaseRateStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("cache: database rate store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.clock().UTC()).
		Delete(&models.RateCounter{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// keyEquals matches a counter by key; the column name is quoted because KEY is reserved
// in MySQL.
func keyEquals(key string) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}
