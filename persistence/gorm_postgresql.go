// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/quizarena/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

func PostgresDSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// NewGormPostgreSQL opens the database and migrates the schema.
func NewGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Challenge{},
		&models.RankingProfile{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func (p *GormPostgreSQL) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	err := p.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateChallengeID
	}
	return err
}

func (p *GormPostgreSQL) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var c models.Challenge
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SaveChallenge upserts the full record.
func (p *GormPostgreSQL) SaveChallenge(ctx context.Context, c *models.Challenge) error {
	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(c).Error
}

// PlayerStats 获取玩家统计
func (p *GormPostgreSQL) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	var stats models.PlayerStats
	err := p.db.WithContext(ctx).Raw(`
        SELECT
            COUNT(*) AS total_games,
            COALESCE(SUM(CASE WHEN winner_id = ? THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(CASE WHEN winner_id <> '' AND winner_id <> ? THEN 1 ELSE 0 END), 0) AS losses,
            COALESCE(SUM(CASE WHEN winner_id = '' OR winner_id IS NULL THEN 1 ELSE 0 END), 0) AS ties
        FROM challenges
        WHERE status = ? AND (challenger_id = ? OR opponent_id = ?)`,
		userID, userID, models.ChallengeCompleted, userID, userID,
	).Scan(&stats).Error
	return &stats, err
}

func (p *GormPostgreSQL) GetProfile(ctx context.Context, userID string) (*models.RankingProfile, error) {
	var prof models.RankingProfile
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&prof).Error; err != nil {
		return nil, notFound(err)
	}
	return &prof, nil
}

// UpdateProfile locks the profile row for the duration of fn. A missing row is
// inserted first so concurrent first updates serialize on the same lock.
func (p *GormPostgreSQL) UpdateProfile(ctx context.Context, userID string, fn func(p *models.RankingProfile)) (*models.RankingProfile, error) {
	var out models.RankingProfile
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.RankingProfile{UserID: userID, UpdatedAt: time.Now()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var prof models.RankingProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&prof).Error; err != nil {
			return err
		}

		fn(&prof)
		prof.UserID = userID
		prof.UpdatedAt = time.Now()

		if err := tx.Save(&prof).Error; err != nil {
			return err
		}
		out = prof
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *GormPostgreSQL) TopProfiles(ctx context.Context, limit int) ([]models.RankingProfile, error) {
	var out []models.RankingProfile
	err := p.db.WithContext(ctx).
		Order("ranking_score DESC").
		Order("user_id").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
