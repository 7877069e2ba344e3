package dto

import (
	"encoding/json"

	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/search"
)

// ObservatoryDTO is one element of a record's "observatory" array. Coordinates
// are accepted as JSON numbers or numeric strings and kept as their exact text.
type ObservatoryDTO struct {
	Name      string      `json:"observatoryName"`
	Latitude  json.Number `json:"latitude"`
	Longitude json.Number `json:"longitude"`
}

// WeatherDTO is one element of a record's "observatoryWeather" array.
type WeatherDTO struct {
	Temperature string  `json:"temperatureInKelvins"`
	Pressure    *string `json:"atmospherePressure,omitempty"`
	CloudCover  *string `json:"cloudinessPercentage,omitempty"`
	Humidity    *string `json:"airHumidityPercentage,omitempty"`
	LightVolume *string `json:"backgroundLightVolume,omitempty"`
}

// RecordDTO represents an observation record in API responses. Update fields
// appear only once the record has been updated; observatory and weather only
// when present.
type RecordDTO struct {
	ID                 uint64           `json:"id"`
	Identifier         string           `json:"recordIdentifier"`
	Description        string           `json:"recordDescription"`
	Payload            string           `json:"recordPayload"`
	RightAscension     string           `json:"recordRightAscension"`
	Declination        string           `json:"recordDeclination"`
	Owner              string           `json:"recordOwner"`
	TimeReceived       string           `json:"recordTimeReceived"`
	UpdateReason       string           `json:"updateReason,omitempty"`
	Modified           string           `json:"modified,omitempty"`
	Observatory        []ObservatoryDTO `json:"observatory,omitempty"`
	ObservatoryWeather []WeatherDTO     `json:"observatoryWeather,omitempty"`
}

// CreateRecordRequest is the body of POST /datarecord. Any value under
// "observatoryWeather" requests weather enrichment.
type CreateRecordRequest struct {
	Identifier         *string          `json:"recordIdentifier"`
	Description        *string          `json:"recordDescription"`
	Payload            *string          `json:"recordPayload"`
	RightAscension     *string          `json:"recordRightAscension"`
	Declination        *string          `json:"recordDeclination"`
	Observatory        []ObservatoryDTO `json:"observatory"`
	ObservatoryWeather json.RawMessage  `json:"observatoryWeather"`
}

// UpdateRecordRequest is the body of PUT /datarecord?id=N
type UpdateRecordRequest struct {
	Description    *string `json:"recordDescription"`
	RightAscension *string `json:"recordRightAscension"`
	Declination    *string `json:"recordDeclination"`
	UpdateReason   string  `json:"updateReason"`
}

// ToRecordDTO converts a record model to DTO
func ToRecordDTO(record models.Record) RecordDTO {
	out := RecordDTO{
		ID:             record.ID,
		Identifier:     record.Identifier,
		Description:    record.Description,
		Payload:        record.Payload,
		RightAscension: record.RightAscension,
		Declination:    record.Declination,
		Owner:          record.OwnerNickname(),
		TimeReceived:   search.FormatTime(record.ReceivedAt()),
	}

	if record.WasUpdated() {
		out.UpdateReason = record.UpdateReason
		out.Modified = search.FormatTime(record.ModifiedAt())
	}

	if record.HasObservatory() {
		obs := record.Observatory
		out.Observatory = []ObservatoryDTO{{
			Name:      obs.Name,
			Latitude:  json.Number(obs.Latitude),
			Longitude: json.Number(obs.Longitude),
		}}
		if record.HasWeather() {
			w := obs.Weather
			out.ObservatoryWeather = []WeatherDTO{{
				Temperature: w.Temperature,
				Pressure:    w.Pressure,
				CloudCover:  w.CloudCover,
				Humidity:    w.Humidity,
				LightVolume: w.LightVolume,
			}}
		}
	}

	return out
}

// ToRecordDTOs converts a slice of records, never returning nil
func ToRecordDTOs(records []models.Record) []RecordDTO {
	out := make([]RecordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, ToRecordDTO(r))
	}
	return out
}
