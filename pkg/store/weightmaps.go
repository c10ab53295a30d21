package store

import (
	"database/sql"
	"fmt"

	"channeldiffusion/internal/models"
)

// WeightMapRepository stores the weight maps of an experiment, one per box.
type WeightMapRepository struct {
	db *DB
}

// NewWeightMapRepository creates a new SQLite weight-map repository.
func NewWeightMapRepository(db *DB) *WeightMapRepository {
	return &WeightMapRepository{db: db}
}

// Save replaces every weight map of the experiment in a single transaction.
// maps[i] is stored as box i.
func (r *WeightMapRepository) Save(experiment string, maps []models.WeightMap) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM weight_maps WHERE experiment = ?`, experiment); err != nil {
		return fmt.Errorf("failed to delete old weight maps: %w", err)
	}

	mapStmt, err := tx.Prepare(`
		INSERT INTO weight_maps (experiment, box_index, x0, y0, x1, y1, x2, y2, x3, y3,
			width, height, kernel, axis_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer mapStmt.Close()

	lineStmt, err := tx.Prepare(`
		INSERT INTO lines (map_id, line_index, start_x, start_y, end_x, end_y, length)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer lineStmt.Close()

	pixelStmt, err := tx.Prepare(`
		INSERT INTO pixel_weights (line_id, seq, x, y, weight)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer pixelStmt.Close()

	for i, wm := range maps {
		c := wm.Box.Corners
		result, err := mapStmt.Exec(experiment, i,
			c[0].X, c[0].Y, c[1].X, c[1].Y, c[2].X, c[2].Y, c[3].X, c[3].Y,
			wm.Shape.Width, wm.Shape.Height, wm.Kernel, wm.AxisLength)
		if err != nil {
			return fmt.Errorf("failed to insert weight map %d: %w", i, err)
		}
		mapID, err := result.LastInsertId()
		if err != nil {
			return err
		}

		for l, line := range wm.Lines {
			result, err := lineStmt.Exec(mapID, l, line.Start.X, line.Start.Y, line.End.X, line.End.Y, line.Length)
			if err != nil {
				return fmt.Errorf("failed to insert line %d of weight map %d: %w", l, i, err)
			}
			lineID, err := result.LastInsertId()
			if err != nil {
				return err
			}

			for seq, p := range line.Pixels {
				if _, err := pixelStmt.Exec(lineID, seq, p.X, p.Y, p.Weight); err != nil {
					return fmt.Errorf("failed to insert pixel weight: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}

// Load returns the experiment's weight maps ordered by box index.
func (r *WeightMapRepository) Load(experiment string) ([]models.WeightMap, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, x0, y0, x1, y1, x2, y2, x3, y3, width, height, kernel, axis_length
		FROM weight_maps WHERE experiment = ? ORDER BY box_index
	`, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight maps: %w", err)
	}

	var ids []int64
	var maps []models.WeightMap
	for rows.Next() {
		var id int64
		var wm models.WeightMap
		c := &wm.Box.Corners
		if err := rows.Scan(&id, &c[0].X, &c[0].Y, &c[1].X, &c[1].Y, &c[2].X, &c[2].Y, &c[3].X, &c[3].Y,
			&wm.Shape.Width, &wm.Shape.Height, &wm.Kernel, &wm.AxisLength); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan weight map: %w", err)
		}
		ids = append(ids, id)
		maps = append(maps, wm)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read weight maps: %w", err)
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("no weight maps stored for experiment %q", experiment)
	}

	for i, id := range ids {
		lines, err := r.loadLines(id)
		if err != nil {
			return nil, fmt.Errorf("weight map %d: %w", i, err)
		}
		maps[i].Lines = lines
	}

	return maps, nil
}

func (r *WeightMapRepository) loadLines(mapID int64) ([]models.Line, error) {
	rows, err := r.db.Conn().Query(`
		SELECT l.line_index, l.start_x, l.start_y, l.end_x, l.end_y, l.length, p.x, p.y, p.weight
		FROM lines l LEFT JOIN pixel_weights p ON p.line_id = l.id
		WHERE l.map_id = ?
		ORDER BY l.line_index, p.seq
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []models.Line
	for rows.Next() {
		var index int
		var line models.Line
		var x, y sql.NullInt64
		var w sql.NullFloat64
		if err := rows.Scan(&index, &line.Start.X, &line.Start.Y, &line.End.X, &line.End.Y, &line.Length,
			&x, &y, &w); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}

		if index == len(lines) {
			lines = append(lines, line)
		} else if index != len(lines)-1 {
			return nil, fmt.Errorf("line %d stored out of sequence", index)
		}
		if x.Valid {
			last := &lines[len(lines)-1]
			last.Pixels = append(last.Pixels, models.PixelWeight{X: int(x.Int64), Y: int(y.Int64), Weight: w.Float64})
		}
	}

	return lines, rows.Err()
}

// Experiments returns the names of all experiments with stored weight maps.
func (r *WeightMapRepository) Experiments() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT DISTINCT experiment FROM weight_maps ORDER BY experiment`)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Delete removes every weight map of the experiment.
func (r *WeightMapRepository) Delete(experiment string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM weight_maps WHERE experiment = ?`, experiment); err != nil {
		return fmt.Errorf("failed to delete weight maps: %w", err)
	}
	return nil
}
