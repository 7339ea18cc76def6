package persistence

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/wfunc/quizarena/models"
)

// newTestGorm connects to QUIZARENA_TEST_POSTGRES_DSN or skips.
func newTestGorm(t *testing.T) *GormPostgreSQL {
	t.Helper()
	dsn := os.Getenv("QUIZARENA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUIZARENA_TEST_POSTGRES_DSN not set")
	}
	db, err := NewGormPostgreSQL(dsn)
	if err != nil {
		t.Fatalf("NewGormPostgreSQL: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGormUpdateProfile_ConcurrentFirstUpdates(t *testing.T) {
	db := newTestGorm(t)
	ctx := context.Background()
	userID := "u-" + uuid.New().String()
	t.Cleanup(func() {
		db.db.Where("user_id = ?", userID).Delete(&models.RankingProfile{})
	})

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.UpdateProfile(ctx, userID, func(p *models.RankingProfile) {
				p.RankingScore += 2
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
	}

	prof, err := db.GetProfile(ctx, userID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if prof.RankingScore != 2*writers {
		t.Errorf("Expected every update to apply (score %d), got %d", 2*writers, prof.RankingScore)
	}
}
