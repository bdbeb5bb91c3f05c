// Package testutil holds shared fixtures for service and API tests.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
	logsvc "github.com/mafunzo/mafunzo/services/logger"
)

// NewConfig returns a self-contained test configuration; no env files, no
// external services.
func NewConfig() *core.Config {
	return &core.Config{
		Env:             "TEST",
		Debug:           false,
		TestMode:        true,
		Build:           "test",
		AppName:         "Mafunzo",
		SecretKey:       "secret",
		FrontendBaseURL: "http://localhost:3000",
		DefaultFromName: "Mafunzo",
		DefaultFromAddr: "noreply@localhost",
		ShareLinkPath:   "/join",
		Server: core.ServerConfig{
			Host:               "localhost",
			Port:               "8000",
			JWTExpirationDelta: 10 * time.Minute,
			ShutdownTimeout:    time.Second,
		},
		Redis: core.RedisConfig{
			LeaderboardTTL: time.Minute,
		},
	}
}

// NewLogger returns a logger that swallows all output.
func NewLogger() core.Logger {
	return logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
}

func CreateProgram(t *testing.T, repo program.Repository, title string, price int64, isActive bool) program.Program {
	t.Helper()
	p, err := repo.CreateProgram(context.Background(), program.Program{
		ID:        "prog-" + title,
		Title:     title,
		Price:     price,
		IsActive:  isActive,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateProgram() failed: %v", err)
	}
	return p
}

func CreateCode(t *testing.T, repo referral.Repository, code, ownerID, programID string, isActive bool) referral.Code {
	t.Helper()
	c, err := repo.CreateCode(context.Background(), referral.Code{
		Code:      code,
		OwnerID:   ownerID,
		ProgramID: programID,
		IsActive:  isActive,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCode() failed: %v", err)
	}
	return c
}

// CreatePolicy inserts an open-ended active policy for the program.
func CreatePolicy(
	t *testing.T,
	repo referral.Repository,
	programID string,
	discount, commission referral.Benefit,
	maxUsesPerCode, maxTotalUses *int,
	createdAt ...time.Time,
) referral.Policy {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	p, err := repo.CreatePolicy(context.Background(), referral.Policy{
		ID:                  "policy-" + tstamp.Format(time.RFC3339Nano),
		ProgramID:           programID,
		ParticipantDiscount: discount,
		ReferrerCommission:  commission,
		MaxUsesPerCode:      maxUsesPerCode,
		MaxTotalUses:        maxTotalUses,
		ValidFrom:           tstamp.Add(-time.Hour),
		IsActive:            true,
		CreatedAt:           tstamp,
		UpdatedAt:           tstamp,
	})
	if err != nil {
		t.Fatalf("CreatePolicy() failed: %v", err)
	}
	return p
}

// IntPtr is a cap literal helper.
func IntPtr(n int) *int { return &n }
