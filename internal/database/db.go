package database

import (
	"fmt"

	"homeport/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal records what homeport did to the host and what the meter reported.
type Journal struct {
	DB *gorm.DB
}

func InitDB(dbPath string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}

	logrus.Debugf("Migrating database %s", dbPath)
	if err := db.AutoMigrate(&models.PortForward{}, &models.Reading{}); err != nil {
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}

	return &Journal{DB: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordForwards replaces the stored forward for each port in forwards.
func (j *Journal) RecordForwards(forwards []models.PortForward) error {
	return j.DB.Transaction(func(tx *gorm.DB) error {
		for i := range forwards {
			pf := forwards[i]
			if err := tx.Unscoped().Where("public_port = ?", pf.PublicPort).Delete(&models.PortForward{}).Error; err != nil {
				return err
			}
			pf.ID = 0
			if err := tx.Create(&pf).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Forwards returns the stored forwards ordered by port.
func (j *Journal) Forwards() ([]models.PortForward, error) {
	var out []models.PortForward
	err := j.DB.Order("public_port").Find(&out).Error
	return out, err
}

func (j *Journal) SaveReadings(readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	return j.DB.Create(&readings).Error
}

// Readings returns the newest readings first. An empty deviceID matches all
// devices.
func (j *Journal) Readings(deviceID string, limit int) ([]models.Reading, error) {
	q := j.DB.Order("id DESC").Limit(limit)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	var out []models.Reading
	err := q.Find(&out).Error
	return out, err
}

// LatestReadings returns the newest reading of every capability, ordered by
// capability.
func (j *Journal) LatestReadings(deviceID string) ([]models.Reading, error) {
	latest := j.DB.Model(&models.Reading{}).Select("MAX(id)").Group("device_id, capability")
	if deviceID != "" {
		latest = latest.Where("device_id = ?", deviceID)
	}
	var out []models.Reading
	err := j.DB.Where("id IN (?)", latest).Order("device_id, capability").Find(&out).Error
	return out, err
}
