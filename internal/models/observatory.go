package models

// Observatory is the named location a record was observed from. Coordinates are
// kept as their decimal text so no precision is lost on the way through storage.
type Observatory struct {
	ID        uint64  `gorm:"primarykey" json:"id"`
	Name      string  `gorm:"type:varchar(255);not null" json:"name"`
	Latitude  string  `gorm:"type:varchar(64);not null" json:"latitude"`
	Longitude string  `gorm:"type:varchar(64);not null" json:"longitude"`
	WeatherID *uint64 `gorm:"index" json:"weather_id,omitempty"`

	// Relations
	Weather *Weather `gorm:"foreignKey:WeatherID" json:"weather,omitempty"`
}

// HasWeather reports whether a weather snapshot is attached.
func (o *Observatory) HasWeather() bool {
	return o != nil && o.Weather != nil
}
