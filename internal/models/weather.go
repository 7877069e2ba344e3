package models

// Weather is a point-in-time snapshot attached to an observatory. Temperature is
// in Kelvin and always present; the other readings are optional.
type Weather struct {
	ID          uint64  `gorm:"primarykey" json:"id"`
	Temperature string  `gorm:"type:varchar(32);not null" json:"temperature"`
	Pressure    *string `gorm:"type:varchar(32)" json:"pressure,omitempty"`
	Humidity    *string `gorm:"type:varchar(32)" json:"humidity,omitempty"`
	CloudCover  *string `gorm:"column:cloud_cover;type:varchar(32)" json:"cloud_cover,omitempty"`
	LightVolume *string `gorm:"column:light_volume;type:varchar(32)" json:"light_volume,omitempty"`
}

func (Weather) TableName() string {
	return "weather"
}
