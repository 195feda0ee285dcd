package database

import (
	"mindline/internal/notifications"
	"mindline/internal/patients"
	"mindline/internal/slots"
	"mindline/internal/waitlist"
	"mindline/internal/waterfall"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&patients.Patient{},
		&slots.Slot{},
		&waitlist.WaitlistEntry{},
		&waterfall.WaterfallJob{},
		&waterfall.Offer{},
		&notifications.DeliveryRecord{},
	)
}
