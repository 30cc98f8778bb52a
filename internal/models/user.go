package models

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Cash      int64     `json:"cash"` // cents
	CreatedAt time.Time `json:"createdAt"`
}
