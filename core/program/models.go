package program

import (
	"errors"
	"time"

	"github.com/mafunzo/mafunzo/core"
)

var ErrNotFound = errors.New("program not found")

// Program is a training program participants enroll into.
// Price is in integer minor currency units; 0 means the program is free.
type Program struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (p Program) IsFree() bool { return p.Price == 0 }

// NewProgram contains information needed to create a new Program.
type NewProgram struct {
	Title string `json:"title" validate:"required"`
	Price int64  `json:"price" validate:"min=0"`
}

func (np *NewProgram) Validate() error {
	np.Title = core.CleanString(np.Title)
	return core.Validate.Struct(np)
}
