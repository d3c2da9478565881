package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kmoreland/leasepulse/internal/database"
	"github.com/kmoreland/leasepulse/internal/models"
)

// ListFilters narrows a unit listing. Nil fields are not applied.
type ListFilters struct {
	Status   *models.UnitStatus
	Bedrooms *int
	PriceMin *int
	PriceMax *int
	City     *string
	Offset   int
	Limit    int
}

// UnitRepository defines the interface for unit data access operations.
type UnitRepository interface {
	// GetByID finds a unit by its identifier.
	// Returns nil, nil if no unit is found (not an error).
	GetByID(ctx context.Context, id string) (*models.Unit, error)

	// List returns units matching the filters, ordered by lead score
	// descending (highest priority first). Returns an empty slice when
	// nothing matches.
	List(ctx context.Context, filters ListFilters) ([]models.Unit, error)

	// Count returns the number of units matching the filters, ignoring
	// Offset and Limit.
	Count(ctx context.Context, filters ListFilters) (int, error)

	// FetchAll returns the full unit population.
	FetchAll(ctx context.Context) ([]models.Unit, error)

	// FetchAvailable returns all units with status available.
	FetchAvailable(ctx context.Context) ([]models.Unit, error)

	// Create persists a new unit.
	Create(ctx context.Context, unit *models.Unit) error

	// Update persists all mutable fields of an existing unit.
	// Returns false when the unit does not exist.
	Update(ctx context.Context, unit *models.Unit) (bool, error)

	// Delete removes a unit permanently. Returns false when the unit
	// does not exist (not an error).
	Delete(ctx context.Context, id string) (bool, error)

	// UpdateLeadScore persists a recomputed lead score.
	UpdateLeadScore(ctx context.Context, id string, score float64) error
}

// unitRepository is the concrete pgx implementation of UnitRepository.
type unitRepository struct {
	db *database.Database
}

// NewUnitRepository creates a new instance of UnitRepository.
func NewUnitRepository(db *database.Database) UnitRepository {
	return &unitRepository{
		db: db,
	}
}

const unitColumns = `
	id,
	property_name,
	unit_number,
	bedrooms,
	bathrooms,
	square_feet,
	price,
	status,
	amenities,
	location,
	images,
	description,
	lead_score,
	listed_at,
	leased_at,
	created_at,
	updated_at`

// scanUnit scans one row into a Unit, decoding the JSONB columns.
func scanUnit(row pgx.Row) (*models.Unit, error) {
	var unit models.Unit
	var amenitiesJSON, locationJSON, imagesJSON []byte

	err := row.Scan(
		&unit.ID,
		&unit.PropertyName,
		&unit.UnitNumber,
		&unit.Bedrooms,
		&unit.Bathrooms,
		&unit.SquareFeet,
		&unit.Price,
		&unit.Status,
		&amenitiesJSON,
		&locationJSON,
		&imagesJSON,
		&unit.Description,
		&unit.LeadScore,
		&unit.ListedAt,
		&unit.LeasedAt,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(amenitiesJSON, &unit.Amenities); err != nil {
		return nil, fmt.Errorf("failed to decode amenities for unit %s: %w", unit.ID, err)
	}
	if err := json.Unmarshal(locationJSON, &unit.Location); err != nil {
		return nil, fmt.Errorf("failed to decode location for unit %s: %w", unit.ID, err)
	}
	if err := json.Unmarshal(imagesJSON, &unit.Images); err != nil {
		return nil, fmt.Errorf("failed to decode images for unit %s: %w", unit.ID, err)
	}

	return &unit, nil
}

// GetByID queries the database for a unit by identifier.
func (r *unitRepository) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`

	unit, err := scanUnit(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		// Not found is not an error at the repository level
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query unit %s: %w", id, err)
	}

	return unit, nil
}

// buildFilterClause assembles the WHERE clause and arguments for filters.
func buildFilterClause(filters ListFilters) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(condition string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if filters.Status != nil {
		add("status = $%d", *filters.Status)
	}
	if filters.Bedrooms != nil {
		add("bedrooms = $%d", *filters.Bedrooms)
	}
	if filters.PriceMin != nil {
		add("price >= $%d", *filters.PriceMin)
	}
	if filters.PriceMax != nil {
		add("price <= $%d", *filters.PriceMax)
	}
	if filters.City != nil {
		add("location->>'city' ILIKE $%d", "%"+*filters.City+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List queries units matching the filters, ordered by lead score descending.
func (r *unitRepository) List(ctx context.Context, filters ListFilters) ([]models.Unit, error) {
	where, args := buildFilterClause(filters)

	query := `SELECT ` + unitColumns + ` FROM units` + where +
		` ORDER BY lead_score DESC, id`

	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return r.queryUnits(ctx, query, args...)
}

// Count returns how many units match the filters.
func (r *unitRepository) Count(ctx context.Context, filters ListFilters) (int, error) {
	where, args := buildFilterClause(filters)

	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM units`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return count, nil
}

// FetchAll returns every unit in the population.
func (r *unitRepository) FetchAll(ctx context.Context) ([]models.Unit, error) {
	return r.queryUnits(ctx, `SELECT `+unitColumns+` FROM units`)
}

// FetchAvailable returns all available units.
func (r *unitRepository) FetchAvailable(ctx context.Context) ([]models.Unit, error) {
	return r.queryUnits(ctx,
		`SELECT `+unitColumns+` FROM units WHERE status = $1`,
		models.StatusAvailable)
}

// queryUnits executes a query producing unit rows and scans them all.
func (r *unitRepository) queryUnits(ctx context.Context, query string, args ...interface{}) ([]models.Unit, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	units := []models.Unit{}
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		units = append(units, *unit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unit rows: %w", err)
	}

	return units, nil
}

// Create inserts a new unit with all of its fields.
func (r *unitRepository) Create(ctx context.Context, unit *models.Unit) error {
	amenitiesJSON, locationJSON, imagesJSON, err := encodeJSONFields(unit)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO units (
			id, property_name, unit_number, bedrooms, bathrooms,
			square_feet, price, status, amenities, location, images,
			description, lead_score, listed_at, leased_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		unit.ID,
		unit.PropertyName,
		unit.UnitNumber,
		unit.Bedrooms,
		unit.Bathrooms,
		unit.SquareFeet,
		unit.Price,
		unit.Status,
		amenitiesJSON,
		locationJSON,
		imagesJSON,
		unit.Description,
		unit.LeadScore,
		unit.ListedAt,
		unit.LeasedAt,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert unit %s: %w", unit.ID, err)
	}

	return nil
}

// Update persists the mutable fields of an existing unit.
func (r *unitRepository) Update(ctx context.Context, unit *models.Unit) (bool, error) {
	amenitiesJSON, locationJSON, imagesJSON, err := encodeJSONFields(unit)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE units SET
			property_name = $2,
			unit_number = $3,
			bedrooms = $4,
			bathrooms = $5,
			square_feet = $6,
			price = $7,
			status = $8,
			amenities = $9,
			location = $10,
			images = $11,
			description = $12,
			lead_score = $13,
			leased_at = $14,
			updated_at = $15
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		unit.ID,
		unit.PropertyName,
		unit.UnitNumber,
		unit.Bedrooms,
		unit.Bathrooms,
		unit.SquareFeet,
		unit.Price,
		unit.Status,
		amenitiesJSON,
		locationJSON,
		imagesJSON,
		unit.Description,
		unit.LeadScore,
		unit.LeasedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update unit %s: %w", unit.ID, err)
	}

	return tag.RowsAffected() > 0, nil
}

// Delete removes a unit. The identifier is never reused.
func (r *unitRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete unit %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateLeadScore persists a recomputed lead score for a unit.
func (r *unitRepository) UpdateLeadScore(ctx context.Context, id string, score float64) error {
	query := `UPDATE units SET lead_score = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, id, score); err != nil {
		return fmt.Errorf("failed to update lead score for unit %s: %w", id, err)
	}
	return nil
}

// encodeJSONFields marshals the JSONB-backed fields of a unit.
func encodeJSONFields(unit *models.Unit) (amenities, location, images []byte, err error) {
	if unit.Amenities == nil {
		unit.Amenities = []string{}
	}
	if unit.Images == nil {
		unit.Images = []string{}
	}

	amenities, err = json.Marshal(unit.Amenities)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode amenities for unit %s: %w", unit.ID, err)
	}
	location, err = json.Marshal(unit.Location)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode location for unit %s: %w", unit.ID, err)
	}
	images, err = json.Marshal(unit.Images)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode images for unit %s: %w", unit.ID, err)
	}
	return amenities, location, images, nil
}
