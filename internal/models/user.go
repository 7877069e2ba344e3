package models

// User is a registered account. Username and email are unique; the password is
// only ever stored as a self-describing salted hash.
type User struct {
	ID           uint64 `gorm:"primarykey" json:"id"`
	Username     string `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname     string `gorm:"type:varchar(255);not null;index" json:"nickname"`

	// Relations
	Records []Record `gorm:"foreignKey:OwnerID" json:"-"`
}
