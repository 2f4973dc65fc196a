package auth

import (
	"errors"
	"strings"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnsureAdmin creates the bootstrap administrator unless an active admin
// already exists. Returns true when a user was created.
func EnsureAdmin(db *gorm.DB, email, password string) (bool, error) {
	var count int64
	if err := db.Model(&models.User{}).
		Where("role = ? AND active = ?", models.RoleAdmin, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if email == "" || password == "" {
		return false, errors.New("admin email and password are required to bootstrap")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := models.User{
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		FirstName:    "System",
		LastName:     "Administrator",
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return false, err
	}

	logrus.WithField("email", admin.Email).Warn("Created bootstrap admin user; change its password")
	return true, nil
}
