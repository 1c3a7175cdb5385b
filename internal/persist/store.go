package persist

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/eduparty/game-backend/internal/lobby"
)

// User is an account row. Token is the opaque credential presented at
// websocket connect; issuing it is the auth service's job, not ours.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;size:50;not null"`
	Token     string `gorm:"uniqueIndex;size:128;not null"`
	Color     string `gorm:"size:16;default:#4a148c"`
	Shape     string `gorm:"size:16;default:circle"`
	CreatedAt time.Time
	Profile   Profile
}

// Profile carries the running match statistics.
type Profile struct {
	ID         uint `gorm:"primaryKey"`
	UserID     uint `gorm:"uniqueIndex;not null"`
	Wins       int
	Losses     int
	TotalGames int
	EloRating  float64 `gorm:"default:1000"`
}

// Store is the postgres-backed Resolver and ResultSink.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&User{}, &Profile{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: log.Named("persist")}, nil
}

func (s *Store) Resolve(ctx context.Context, credential string) (lobby.Identity, error) {
	var u User
	err := s.db.WithContext(ctx).Where("token = ?", credential).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lobby.Identity{}, ErrAuth
	}
	if err != nil {
		return lobby.Identity{}, err
	}
	return lobby.Identity{Username: u.Username, Color: u.Color, Shape: u.Shape}, nil
}

// PersistResult books the finished tournament into every
// participant's profile: the winner gains a win and +16 Elo, everyone
// else a loss and -8, floored at 100.
func (s *Store) PersistResult(ctx context.Context, o lobby.Outcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for username := range o.Scores {
			var u User
			err := tx.Where("username = ?", username).First(&u).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue // guests have no profile
			}
			if err != nil {
				return err
			}

			var p Profile
			if err := tx.Where("user_id = ?", u.ID).FirstOrCreate(&p, Profile{UserID: u.ID, EloRating: 1000}).Error; err != nil {
				return err
			}
			p.TotalGames++
			if username == o.Winner {
				p.Wins++
				p.EloRating += 16
			} else {
				p.Losses++
				p.EloRating -= 8
				if p.EloRating < 100 {
					p.EloRating = 100
				}
			}
			if err := tx.Save(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
