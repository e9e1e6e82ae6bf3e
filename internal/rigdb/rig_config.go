package rigdb

import (
	"database/sql"
	"errors"
	"fmt"
)

// RigConfig is one stored rig profile.
type RigConfig struct {
	ID                  int     `json:"id"`
	Name                string  `json:"name"`
	UDPPort             int     `json:"udp_port"`
	OffsetX             float64 `json:"offset_x"`
	OffsetY             float64 `json:"offset_y"`
	OffsetZ             float64 `json:"offset_z"`
	Mode                string  `json:"mode"`
	VisibilityThreshold float64 `json:"visibility_threshold"`
	Description         string  `json:"description"`
	CreatedAt           int64   `json:"created_at"`
	UpdatedAt           int64   `json:"updated_at"`
}

// ErrNotFound is returned by updates and deletes of a missing ID.
var ErrNotFound = errors.New("rig config not found")

const rigColumns = `id, name, udp_port, offset_x, offset_y, offset_z, mode, visibility_threshold, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRigConfig(row rowScanner) (RigConfig, error) {
	var c RigConfig
	err := row.Scan(&c.ID, &c.Name, &c.UDPPort, &c.OffsetX, &c.OffsetY, &c.OffsetZ,
		&c.Mode, &c.VisibilityThreshold, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetRigConfigs returns all rig profiles ordered by name.
func (db *DB) GetRigConfigs() ([]RigConfig, error) {
	query := `SELECT ` + rigColumns + `
	          FROM rig_config
	          ORDER BY name ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rig configs: %w", err)
	}
	defer rows.Close()

	configs := []RigConfig{}
	for rows.Next() {
		c, err := scanRigConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rig config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rig configs: %w", err)
	}
	return configs, nil
}

// GetRigConfig returns a rig profile by ID, or nil if there is none.
func (db *DB) GetRigConfig(id int) (*RigConfig, error) {
	query := `SELECT ` + rigColumns + `
	          FROM rig_config
	          WHERE id = ?`

	c, err := scanRigConfig(db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rig config: %w", err)
	}
	return &c, nil
}

// GetRigConfigByName returns a rig profile by name, or nil if there is none.
func (db *DB) GetRigConfigByName(name string) (*RigConfig, error) {
	query := `SELECT ` + rigColumns + `
	          FROM rig_config
	          WHERE name = ?`

	c, err := scanRigConfig(db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rig config %q: %w", name, err)
	}
	return &c, nil
}

// CreateRigConfig inserts c and returns its new ID. Names are unique.
func (db *DB) CreateRigConfig(c *RigConfig) (int64, error) {
	query := `INSERT INTO rig_config (name, udp_port, offset_x, offset_y, offset_z, mode, visibility_threshold, description)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.Exec(query, c.Name, c.UDPPort, c.OffsetX, c.OffsetY, c.OffsetZ,
		c.Mode, c.VisibilityThreshold, c.Description)
	if err != nil {
		return 0, fmt.Errorf("failed to create rig config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// UpdateRigConfig overwrites the profile with c.ID.
func (db *DB) UpdateRigConfig(c *RigConfig) error {
	query := `UPDATE rig_config
	          SET name = ?, udp_port = ?, offset_x = ?, offset_y = ?, offset_z = ?,
	              mode = ?, visibility_threshold = ?, description = ?,
	              updated_at = strftime('%s', 'now')
	          WHERE id = ?`

	result, err := db.Exec(query, c.Name, c.UDPPort, c.OffsetX, c.OffsetY, c.OffsetZ,
		c.Mode, c.VisibilityThreshold, c.Description, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update rig config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rig config with ID %d: %w", c.ID, ErrNotFound)
	}
	return nil
}

// DeleteRigConfig removes the profile with the given ID.
func (db *DB) DeleteRigConfig(id int) error {
	result, err := db.Exec(`DELETE FROM rig_config WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rig config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rig config with ID %d: %w", id, ErrNotFound)
	}
	return nil
}
