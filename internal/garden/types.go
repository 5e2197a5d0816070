package garden

import "time"

// Pot is a user-owned container for plants. Names are unique per owner.
type Pot struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Plant lives in a pot and is the subject of sensor readings.
type Plant struct {
	ID        string    `json:"id"`
	PotID     string    `json:"pot_id"`
	Species   string    `json:"species"`
	Nickname  *string   `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

// SensorReading is one immutable sample for a plant.
type SensorReading struct {
	ID          string    `json:"id"`
	PlantID     string    `json:"plant_id"`
	Timestamp   time.Time `json:"timestamp"`
	Moisture    float64   `json:"moisture"`
	Light       float64   `json:"light"`
	Temperature float64   `json:"temperature"`
}
