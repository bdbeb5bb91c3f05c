// Package inmemdb provides mutex-guarded in-memory repositories used in
// DEV mode and as test doubles. All repositories share one lock so the
// multi-step writes (uniqueness checks, usage-cap checks) are atomic, the
// same guarantee the SQL repositories get from transactions.
package inmemdb

import (
	"sync"

	"github.com/mafunzo/mafunzo/core/enrollment"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
)

type DB struct {
	mutex sync.RWMutex

	codes     map[string]*referral.Code // keyed by normalized code value
	policies  map[string]*referral.Policy
	trackings map[string]*referral.Tracking
	// trackingByEnrollment backs the (enrollment_id) uniqueness constraint
	trackingByEnrollment map[string]string

	programs    map[string]*program.Program
	drafts      map[string]*enrollment.Draft
	enrollments map[string]*enrollment.Enrollment
}

func Open() (*DB, error) {
	return &DB{
		codes:                make(map[string]*referral.Code),
		policies:             make(map[string]*referral.Policy),
		trackings:            make(map[string]*referral.Tracking),
		trackingByEnrollment: make(map[string]string),
		programs:             make(map[string]*program.Program),
		drafts:               make(map[string]*enrollment.Draft),
		enrollments:          make(map[string]*enrollment.Enrollment),
	}, nil
}
