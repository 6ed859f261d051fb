// Package sweeper deletes rooms past their expiry on a fixed interval.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/onlinex/onlinex/internal/database"
)

type Sweeper struct {
	log      *log.Logger
	db       database.OnlinexRepository
	interval time.Duration
}

func NewSweeper(logger *log.Logger, db database.OnlinexRepository, interval time.Duration) *Sweeper {
	return &Sweeper{
		log:      logger,
		db:       db,
		interval: interval,
	}
}

// Sweep deletes every room expired as of now, members and messages included.
// A failure on one room does not stop the sweep; the count of rooms actually
// deleted is returned along with the joined errors.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	expired, err := s.db.GetExpiredRooms(now)
	if err != nil {
		return 0, fmt.Errorf("list expired rooms: %w", err)
	}

	var deleted int
	var errs []error
	for _, room := range expired {
		if err := s.db.DeleteRoom(room.Id); err != nil {
			s.log.Printf("delete expired room %q: %v", room.Code, err)
			errs = append(errs, fmt.Errorf("room %q: %w", room.Code, err))
			continue
		}

		deleted++
	}

	if deleted > 0 {
		s.log.Printf("swept %d expired rooms", deleted)
	}

	return deleted, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(time.Now().UTC()); err != nil {
				s.log.Printf("sweep: %v", err)
			}
		case <-ctx.Done():
			s.log.Println("sweeper exiting")
			return
		}
	}
}
