package repository

import (
	"errors"

	"gorm.io/gorm"

	"conversation_sync_service/internal/conversation/domain"
)

// ProfileRepository definition profile directory access
type ProfileRepository interface {
	AutoMigrate() error
	UpsertUser(profile *domain.UserProfile) error
	GetUser(userID string) (*domain.UserProfile, error)
	GetUsers(userIDs []string) ([]domain.UserProfile, error)
	UpsertOrganization(profile *domain.OrganizationProfile) error
	GetOrganization(orgID string) (*domain.OrganizationProfile, error)
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository create a ProfileRepository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.UserProfile{}, &domain.OrganizationProfile{})
}

func (r *profileRepository) UpsertUser(profile *domain.UserProfile) error {
	return r.db.Save(profile).Error
}

func (r *profileRepository) GetUser(userID string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := r.db.First(&p, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) GetUsers(userIDs []string) ([]domain.UserProfile, error) {
	var out []domain.UserProfile
	if err := r.db.Where("user_id IN ?", userIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profileRepository) UpsertOrganization(profile *domain.OrganizationProfile) error {
	return r.db.Save(profile).Error
}

func (r *profileRepository) GetOrganization(orgID string) (*domain.OrganizationProfile, error) {
	var p domain.OrganizationProfile
	if err := r.db.First(&p, "org_id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
