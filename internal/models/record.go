package models

import "time"

// DefaultUpdateReason is stored until a record is first updated.
const DefaultUpdateReason = "N/A"

// Record is one submitted observation. TimeReceived and Modified are epoch
// milliseconds; Modified equals TimeReceived until the first update.
type Record struct {
	ID             uint64  `gorm:"primarykey" json:"id"`
	Identifier     string  `gorm:"type:varchar(255);not null;index" json:"identifier"`
	Description    string  `gorm:"type:text;not null" json:"description"`
	Payload        string  `gorm:"type:text;not null" json:"payload"`
	RightAscension string  `gorm:"column:right_ascension;type:varchar(64);not null" json:"right_ascension"`
	Declination    string  `gorm:"type:varchar(64);not null" json:"declination"`
	OwnerID        uint64  `gorm:"not null;index" json:"owner_id"`
	TimeReceived   int64   `gorm:"column:time_received;not null;index" json:"time_received"`
	UpdateReason   string  `gorm:"column:update_reason;type:varchar(255);not null" json:"update_reason"`
	Modified       int64   `gorm:"column:modified;not null" json:"modified"`
	ObservatoryID  *uint64 `gorm:"index" json:"observatory_id,omitempty"`

	// Relations
	Owner       *User        `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Observatory *Observatory `gorm:"foreignKey:ObservatoryID" json:"observatory,omitempty"`
}

// ReceivedAt returns the creation time in UTC.
func (r *Record) ReceivedAt() time.Time {
	return time.UnixMilli(r.TimeReceived).UTC()
}

// ModifiedAt returns the last update time in UTC.
func (r *Record) ModifiedAt() time.Time {
	return time.UnixMilli(r.Modified).UTC()
}

// WasUpdated reports whether the record has been updated since creation.
func (r *Record) WasUpdated() bool {
	return r.Modified != r.TimeReceived
}

// HasObservatory reports whether an observatory is attached.
func (r *Record) HasObservatory() bool {
	return r.Observatory != nil
}

// HasWeather reports whether the attached observatory carries weather.
func (r *Record) HasWeather() bool {
	return r.Observatory.HasWeather()
}

// OwnerNickname returns the owner's display name when the owner was loaded.
func (r *Record) OwnerNickname() string {
	if r.Owner == nil {
		return ""
	}
	return r.Owner.Nickname
}
