package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/mafunzo/mafunzo/core/program"
)

type programRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Price     int64     `db:"price"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

type programRepository struct {
	db *sqlx.DB
}

var _ program.Repository = (*programRepository)(nil) // interface compliance check

func NewProgramRepository(db *sqlx.DB) *programRepository {
	return &programRepository{db: db}
}

func (repo programRepository) pack(p program.Program) programRow {
	return programRow{
		ID:        p.ID,
		Title:     p.Title,
		Price:     p.Price,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt.UTC(),
	}
}

func (repo programRepository) unpack(row programRow) program.Program {
	return program.Program{
		ID:        row.ID,
		Title:     row.Title,
		Price:     row.Price,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
}

func (repo programRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return program.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo programRepository) CreateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	row := repo.pack(p)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO program (id, title, price, is_active, created_at)
		VALUES (:id, :title, :price, :is_active, :created_at)`, row)
	if err != nil {
		return program.Program{}, errors.Wrap(err, "inserting program")
	}
	return repo.unpack(row), nil
}

func (repo programRepository) GetProgram(ctx context.Context, id string) (program.Program, error) {
	var row programRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM program WHERE id = $1`, id)
	if err != nil {
		return program.Program{}, repo.trapNoRowsErr(err, "finding program")
	}
	return repo.unpack(row), nil
}

func (repo programRepository) QueryAllPrograms(ctx context.Context) ([]program.Program, error) {
	var rows []programRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM program ORDER BY created_at`)
	if err != nil {
		return nil, errors.Wrap(err, "querying programs")
	}
	programs := make([]program.Program, 0, len(rows))
	for _, row := range rows {
		programs = append(programs, repo.unpack(row))
	}
	return programs, nil
}

func (repo programRepository) UpdateProgram(ctx context.Context, p program.Program) (program.Program, error) {
	row := repo.pack(p)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE program SET title = :title, price = :price, is_active = :is_active
		WHERE id = :id`, row)
	if err != nil {
		return program.Program{}, errors.Wrap(err, "updating program")
	}
	if n, err := res.RowsAffected(); err != nil {
		return program.Program{}, errors.Wrap(err, "updating program")
	} else if n == 0 {
		return program.Program{}, program.ErrNotFound
	}
	return repo.unpack(row), nil
}
