package warehouse

import "time"

type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Address   string    `json:"address"`
	Capacity  int       `json:"capacity"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Default is materialized when no active warehouse exists.
var Default = Warehouse{
	Name:     "Main Warehouse",
	Code:     "MAIN",
	Address:  "Hauptlager Str. 1, 70173 Stuttgart",
	Capacity: 10000,
	IsActive: true,
}
