package garden

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// Repository defines garden persistence. Owner-scoped methods treat
// resources of other users as missing.
type Repository interface {
	CreatePot(ctx context.Context, pot *Pot) error
	GetPot(ctx context.Context, ownerID, id string) (*Pot, error)
	GetPotByName(ctx context.Context, ownerID, name string) (*Pot, error)
	ListPots(ctx context.Context, ownerID string) ([]Pot, error)
	DeletePot(ctx context.Context, ownerID, name string) (string, error)

	CreatePlant(ctx context.Context, ownerID string, plant *Plant) error
	GetPlant(ctx context.Context, ownerID, id string) (*Plant, error)
	ListPlantsByPotName(ctx context.Context, ownerID, potName string) ([]Plant, error)
	DeletePlant(ctx context.Context, ownerID, id string) error
	PlantOwner(ctx context.Context, plantID string) (string, error)

	AddReading(ctx context.Context, reading *SensorReading) error
	ListReadings(ctx context.Context, ownerID, plantID string) ([]SensorReading, error)
}

// SQLiteRepository implements Repository on any DBTX.
type SQLiteRepository struct {
	db database.DBTX
}

// NewSQLiteRepository creates a garden repository on db.
func NewSQLiteRepository(db database.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// CreatePot inserts pot with a fresh id. pot.UserID must be set.
func (r *SQLiteRepository) CreatePot(ctx context.Context, pot *Pot) error {
	pot.ID = uuid.NewString()
	pot.CreatedAt = now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pots (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		pot.ID, pot.UserID, pot.Name, database.FormatTime(pot.CreatedAt))
	switch {
	case err == nil:
		return nil
	case database.IsUniqueViolation(err):
		return ErrPotNameExists
	case database.IsForeignKeyViolation(err):
		return ErrOwnerNotFound
	default:
		return fmt.Errorf("inserting pot %q: %w", pot.Name, err)
	}
}

const potColumns = "id, user_id, name, created_at"

// GetPot returns the owner's pot with the given id.
func (r *SQLiteRepository) GetPot(ctx context.Context, ownerID, id string) (*Pot, error) {
	return scanPot(r.db.QueryRowContext(ctx,
		"SELECT "+potColumns+" FROM pots WHERE id = ? AND user_id = ?", id, ownerID))
}

// GetPotByName returns the owner's pot with the given name.
func (r *SQLiteRepository) GetPotByName(ctx context.Context, ownerID, name string) (*Pot, error) {
	return scanPot(r.db.QueryRowContext(ctx,
		"SELECT "+potColumns+" FROM pots WHERE name = ? AND user_id = ?", name, ownerID))
}

// ListPots returns the owner's pots, oldest first. Never nil.
func (r *SQLiteRepository) ListPots(ctx context.Context, ownerID string) ([]Pot, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+potColumns+" FROM pots WHERE user_id = ? ORDER BY created_at, rowid", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing pots: %w", err)
	}
	defer rows.Close()

	pots := []Pot{}
	for rows.Next() {
		p, err := scanPot(rows)
		if err != nil {
			return nil, err
		}
		pots = append(pots, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pots: %w", err)
	}
	return pots, nil
}

// DeletePot removes the owner's pot by name together with its plants and
// their readings, and returns the deleted pot's id.
func (r *SQLiteRepository) DeletePot(ctx context.Context, ownerID, name string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		"DELETE FROM pots WHERE name = ? AND user_id = ? RETURNING id", name, ownerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPotNotFound
	}
	if err != nil {
		return "", fmt.Errorf("deleting pot %q: %w", name, err)
	}
	return id, nil
}

// CreatePlant inserts plant into plant.PotID after confirming that the pot
// exists and belongs to ownerID.
func (r *SQLiteRepository) CreatePlant(ctx context.Context, ownerID string, plant *Plant) error {
	if _, err := r.GetPot(ctx, ownerID, plant.PotID); err != nil {
		return err
	}

	plant.ID = uuid.NewString()
	plant.CreatedAt = now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plants (id, pot_id, species, nickname, created_at) VALUES (?, ?, ?, ?, ?)`,
		plant.ID, plant.PotID, plant.Species, nullable(plant.Nickname),
		database.FormatTime(plant.CreatedAt))
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrPotNotFound
		}
		return fmt.Errorf("inserting plant: %w", err)
	}
	return nil
}

const plantColumns = "p.id, p.pot_id, p.species, p.nickname, p.created_at"

// GetPlant returns a plant in one of the owner's pots.
func (r *SQLiteRepository) GetPlant(ctx context.Context, ownerID, id string) (*Plant, error) {
	return scanPlant(r.db.QueryRowContext(ctx,
		`SELECT `+plantColumns+` FROM plants p
		 JOIN pots ON pots.id = p.pot_id
		 WHERE p.id = ? AND pots.user_id = ?`, id, ownerID))
}

// ListPlantsByPotName returns the plants of the owner's named pot, oldest
// first. ErrPotNotFound is returned if the pot does not exist.
func (r *SQLiteRepository) ListPlantsByPotName(ctx context.Context, ownerID, potName string) ([]Plant, error) {
	pot, err := r.GetPotByName(ctx, ownerID, potName)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+plantColumns+` FROM plants p WHERE p.pot_id = ? ORDER BY p.created_at, p.rowid`, pot.ID)
	if err != nil {
		return nil, fmt.Errorf("listing plants: %w", err)
	}
	defer rows.Close()

	plants := []Plant{}
	for rows.Next() {
		p, err := scanPlant(rows)
		if err != nil {
			return nil, err
		}
		plants = append(plants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plants: %w", err)
	}
	return plants, nil
}

// DeletePlant removes a plant in one of the owner's pots, with its readings.
func (r *SQLiteRepository) DeletePlant(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM plants WHERE id = ?
		 AND pot_id IN (SELECT id FROM pots WHERE user_id = ?)`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting plant %s: %w", id, err)
	}
	return requireAffected(result, ErrPlantNotFound)
}

// PlantOwner returns the id of the user owning plantID. Used where no
// authenticated user is available, such as MQTT ingest.
func (r *SQLiteRepository) PlantOwner(ctx context.Context, plantID string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx,
		`SELECT pots.user_id FROM plants p JOIN pots ON pots.id = p.pot_id WHERE p.id = ?`,
		plantID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrPlantNotFound
		}
		return "", fmt.Errorf("looking up plant owner: %w", err)
	}
	return owner, nil
}

// AddReading inserts reading for an existing plant. A zero Timestamp is
// replaced with the current time. Ownership is the caller's concern.
func (r *SQLiteRepository) AddReading(ctx context.Context, reading *SensorReading) error {
	var exists int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM plants WHERE id = ?", reading.PlantID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlantNotFound
		}
		return fmt.Errorf("checking plant %s: %w", reading.PlantID, err)
	}

	reading.ID = uuid.NewString()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = now()
	} else {
		reading.Timestamp = reading.Timestamp.UTC().Truncate(time.Microsecond)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sensordata (id, plant_id, timestamp, moisture, light, temperature)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reading.ID, reading.PlantID, database.FormatTime(reading.Timestamp),
		reading.Moisture, reading.Light, reading.Temperature)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrPlantNotFound
		}
		return fmt.Errorf("inserting sensor reading: %w", err)
	}
	return nil
}

// ListReadings returns the owner's readings ordered by timestamp, ties in
// insertion order. An empty plantID lists readings across all plants.
// Never nil.
func (r *SQLiteRepository) ListReadings(ctx context.Context, ownerID, plantID string) ([]SensorReading, error) {
	query := `SELECT s.id, s.plant_id, s.timestamp, s.moisture, s.light, s.temperature
		FROM sensordata s
		JOIN plants p ON p.id = s.plant_id
		JOIN pots ON pots.id = p.pot_id
		WHERE pots.user_id = ?`
	args := []any{ownerID}
	if plantID != "" {
		query += " AND s.plant_id = ?"
		args = append(args, plantID)
	}
	query += " ORDER BY s.timestamp ASC, s.rowid ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sensor readings: %w", err)
	}
	defer rows.Close()

	readings := []SensorReading{}
	for rows.Next() {
		var (
			s  SensorReading
			ts string
		)
		if err := rows.Scan(&s.ID, &s.PlantID, &ts, &s.Moisture, &s.Light, &s.Temperature); err != nil {
			return nil, fmt.Errorf("scanning sensor reading: %w", err)
		}
		if s.Timestamp, err = database.ParseTime(ts); err != nil {
			return nil, err
		}
		readings = append(readings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor readings: %w", err)
	}
	return readings, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPot(s scanner) (*Pot, error) {
	var (
		p         Pot
		createdAt string
	)
	if err := s.Scan(&p.ID, &p.UserID, &p.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPotNotFound
		}
		return nil, fmt.Errorf("scanning pot: %w", err)
	}
	var err error
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPlant(s scanner) (*Plant, error) {
	var (
		p         Plant
		nickname  sql.NullString
		createdAt string
	)
	if err := s.Scan(&p.ID, &p.PotID, &p.Species, &nickname, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlantNotFound
		}
		return nil, fmt.Errorf("scanning plant: %w", err)
	}
	if nickname.Valid {
		p.Nickname = &nickname.String
	}
	var err error
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
