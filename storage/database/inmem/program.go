package inmemdb

import (
	"context"
	"sort"

	"github.com/mafunzo/mafunzo/core/program"
)

type programRepository struct {
	db *DB
}

var _ program.Repository = (*programRepository)(nil) // interface compliance check

func NewProgramRepository(db *DB) *programRepository {
	return &programRepository{db: db}
}

func (repo *programRepository) CreateProgram(_ context.Context, p program.Program) (program.Program, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.programs[p.ID] = &p
	return p, nil
}

func (repo *programRepository) GetProgram(_ context.Context, id string) (program.Program, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.programs[id]; ok {
		return *p, nil
	}
	return program.Program{}, program.ErrNotFound
}

func (repo *programRepository) QueryAllPrograms(_ context.Context) ([]program.Program, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	programs := make([]program.Program, 0, len(repo.db.programs))
	for _, p := range repo.db.programs {
		programs = append(programs, *p)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].CreatedAt.Before(programs[j].CreatedAt) })
	return programs, nil
}

func (repo *programRepository) UpdateProgram(_ context.Context, p program.Program) (program.Program, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.programs[p.ID]; !ok {
		return program.Program{}, program.ErrNotFound
	}
	repo.db.programs[p.ID] = &p
	return p, nil
}
