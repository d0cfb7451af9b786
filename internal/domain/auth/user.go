package auth

import "time"

type Role string

const (
	RoleCoach   Role = "coach"
	RoleStudent Role = "student"
)

// User mirrors the record owned by the external identity service. Only the
// fields the booking core needs are kept here; login and token issuance live
// elsewhere.
type User struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	Role      Role      `gorm:"column:role;type:varchar(16)" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) IsCoach() bool   { return u.Role == RoleCoach }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }
