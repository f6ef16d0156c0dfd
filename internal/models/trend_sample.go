package models

import "time"

type TrendSample struct {
	Time time.Time `json:"time"`
	Temp float64   `json:"temp"` // °C
}
