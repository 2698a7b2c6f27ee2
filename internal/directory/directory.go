// Package directory is the provider-account view consumed for backup
// reassignment and penalty standing mutations.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SevaSetuLabs/booking/pkg/booking"
)

const (
	errorOperationDirectory = "directory"
	errorSubjectProvider    = "provider"
	errorCodeGet            = "get"
	errorCodeInvalid        = "invalid"
	errorCodeSearch         = "search"
	errorCodeUpdate         = "update"

	searchBatchSize = 200
)

// ProviderRecord represents the providers table.
type ProviderRecord struct {
	ProviderID      string         `gorm:"primaryKey"`
	City            string         `gorm:"not null;index:idx_providers_city_standing,priority:1"`
	Specializations datatypes.JSON `gorm:"not null"`
	Rating          float64        `gorm:"not null;default:0"`
	Available       bool           `gorm:"not null;default:false"`
	Standing        string         `gorm:"not null;index:idx_providers_city_standing,priority:2"`
	CreatedAt       time.Time      `gorm:"not null"`
	UpdatedAt       time.Time      `gorm:"not null"`
}

func (ProviderRecord) TableName() string { return "providers" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&ProviderRecord{}}
}

// Directory implements booking.Directory using GORM.
type Directory struct {
	db *gorm.DB
}

// New returns a Directory backed by gorm.DB.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// FindBackupProvider returns the highest-rated available provider in the
// booking's city, excluding the original provider, whose specializations
// cover the booked service type. The city, availability, and standing
// filters run in SQL; the specialization match runs here because it is a
// JSON array containment check that has to work on SQLite too.
func (directory *Directory) FindBackupProvider(ctx context.Context, criteria booking.BackupCriteria) (booking.Provider, bool, error) {
	var rows []ProviderRecord
	err := directory.db.WithContext(ctx).
		Where("city = ? AND available = ? AND standing = ? AND provider_id <> ?",
			criteria.City, true, booking.StandingActive.String(), criteria.ExcludeProviderID).
		Order("rating DESC").
		Limit(searchBatchSize).
		Find(&rows).Error
	if err != nil {
		return booking.Provider{}, false, wrapDirectoryError(errorSubjectProvider, errorCodeSearch, err)
	}
	for _, row := range rows {
		provider, err := mapProvider(row)
		if err != nil {
			return booking.Provider{}, false, err
		}
		if covers(provider.Specializations, criteria.ServiceType) {
			return provider, true, nil
		}
	}
	return booking.Provider{}, false, nil
}

// SetProviderStanding mutates the provider account status.
func (directory *Directory) SetProviderStanding(ctx context.Context, providerID string, standing booking.ProviderStanding) error {
	result := directory.db.WithContext(ctx).
		Model(&ProviderRecord{}).
		Where("provider_id = ?", providerID).
		Updates(map[string]any{"standing": standing.String(), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapDirectoryError(errorSubjectProvider, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapDirectoryError(errorSubjectProvider, errorCodeUpdate, booking.ErrNotFound)
	}
	return nil
}

// GetProvider returns one provider by identifier.
func (directory *Directory) GetProvider(ctx context.Context, providerID string) (booking.Provider, error) {
	var record ProviderRecord
	err := directory.db.WithContext(ctx).Where("provider_id = ?", providerID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.Provider{}, wrapDirectoryError(errorSubjectProvider, errorCodeGet, booking.ErrNotFound)
	}
	if err != nil {
		return booking.Provider{}, wrapDirectoryError(errorSubjectProvider, errorCodeGet, err)
	}
	return mapProvider(record)
}

// UpsertProvider creates or replaces a provider row. Used by migrations and
// tests; provider onboarding itself lives outside this subsystem.
func (directory *Directory) UpsertProvider(ctx context.Context, provider booking.Provider) error {
	specializations, err := json.Marshal(provider.Specializations)
	if err != nil {
		return wrapDirectoryError(errorSubjectProvider, errorCodeInvalid, err)
	}
	record := ProviderRecord{
		ProviderID:      provider.ProviderID,
		City:            provider.City,
		Specializations: datatypes.JSON(specializations),
		Rating:          provider.Rating,
		Available:       provider.Available,
		Standing:        provider.Standing.String(),
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	err = directory.db.WithContext(ctx).Save(&record).Error
	if err != nil {
		return wrapDirectoryError(errorSubjectProvider, errorCodeUpdate, err)
	}
	return nil
}

func mapProvider(record ProviderRecord) (booking.Provider, error) {
	var specializations []string
	if len(record.Specializations) > 0 {
		if err := json.Unmarshal(record.Specializations, &specializations); err != nil {
			return booking.Provider{}, wrapDirectoryError(errorSubjectProvider, errorCodeInvalid, err)
		}
	}
	return booking.Provider{
		ProviderID:      record.ProviderID,
		City:            record.City,
		Specializations: specializations,
		Rating:          record.Rating,
		Available:       record.Available,
		Standing:        booking.ProviderStanding(record.Standing),
	}, nil
}

func covers(specializations []string, serviceType string) bool {
	if serviceType == "" {
		return true
	}
	for _, specialization := range specializations {
		if strings.EqualFold(specialization, serviceType) {
			return true
		}
	}
	return false
}

func wrapDirectoryError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationDirectory, subject, code, err)
}
