package address

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrAddressNotFound = errors.New("address not found")

// Address is a coach-owned place where sessions happen. Full address-book CRUD
// is handled by a separate surface; the booking core only resolves ids.
type Address struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	CoachID   int64     `gorm:"column:coach_id;index" json:"coach_id"`
	Name      string    `gorm:"column:name" json:"name"`
	Detail    string    `gorm:"column:detail;type:text" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Address) TableName() string { return "addresses" }

type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) GetByID(ctx context.Context, id int64) (*Address, error) {
	var a Address
	if err := d.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (d *Directory) ListByCoach(ctx context.Context, coachID int64) ([]Address, error) {
	var out []Address
	err := d.db.WithContext(ctx).Where("coach_id = ?", coachID).Order("id").Find(&out).Error
	return out, err
}
