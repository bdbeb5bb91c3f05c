package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/mafunzo/mafunzo/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) CreateDraft(_ context.Context, d enrollment.Draft) (enrollment.Draft, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.drafts[d.ID] = &d
	return d, nil
}

func (repo *enrollmentRepository) GetDraft(_ context.Context, id string) (enrollment.Draft, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.drafts[id]; ok {
		return *d, nil
	}
	return enrollment.Draft{}, enrollment.ErrDraftNotFound
}

func (repo *enrollmentRepository) UpdateDraft(_ context.Context, d enrollment.Draft) (enrollment.Draft, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.drafts[d.ID]; !ok {
		return enrollment.Draft{}, enrollment.ErrDraftNotFound
	}
	repo.db.drafts[d.ID] = &d
	return d, nil
}

func (repo *enrollmentRepository) ClaimDraft(_ context.Context, id string, at time.Time) (enrollment.Draft, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.drafts[id]
	if !ok {
		return enrollment.Draft{}, false, enrollment.ErrDraftNotFound
	}
	if d.Submitted {
		return *d, false, nil
	}
	d.Submitted = true
	d.UpdatedAt = at
	return *d, true, nil
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.enrollments[e.ID] = &e
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, id string) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.enrollments[id]; ok {
		return *e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[e.ID]; !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	repo.db.enrollments[e.ID] = &e
	return e, nil
}

func (repo *enrollmentRepository) QueryEnrollmentsByParticipant(_ context.Context, participantID string) ([]enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]enrollment.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.ParticipantID == participantID {
			enrollments = append(enrollments, *e)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].CreatedAt.Before(enrollments[j].CreatedAt) })
	return enrollments, nil
}
