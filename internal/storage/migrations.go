package storage

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

const errorMessageAutoMigrate = "storage: auto migrate"

// AutoMigrate runs database migrations for the storage layer models.
func AutoMigrate(database *gorm.DB) error {
	if err := database.AutoMigrate(&model.Inquiry{}, &model.Settings{}); err != nil {
		return fmt.Errorf("%s: %w", errorMessageAutoMigrate, err)
	}
	return nil
}
