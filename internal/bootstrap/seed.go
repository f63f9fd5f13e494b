package bootstrap

import (
	"errors"
	"time"

	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/internal/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const demoTokenTTL = 30 * 24 * time.Hour

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(entity.All()...)
}

var demoProfiles = []entity.Profile{
	{Username: "demo_alice", DisplayName: "Demo Alice"},
	{Username: "demo_bob", DisplayName: "Demo Bob"},
}

// SeedDemoProfiles creates a pair of development profiles and logs a bearer
// token for each, so the API can be exercised without an identity provider.
func SeedDemoProfiles(db *gorm.DB, jwtSecret string, log *zap.Logger) error {
	for _, demo := range demoProfiles {
		var profile entity.Profile
		err := db.Where("username = ?", demo.Username).First(&profile).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			profile = demo
			if err := db.Create(&profile).Error; err != nil {
				return err
			}
			log.Info("demo profile seeded", zap.String("username", profile.Username))
		case err != nil:
			return err
		}

		token, err := middleware.IssueToken(jwtSecret, profile.ID, demoTokenTTL)
		if err != nil {
			return err
		}
		log.Info("demo token",
			zap.String("username", profile.Username),
			zap.String("user_id", profile.ID.String()),
			zap.String("token", token),
		)
	}
	return nil
}
