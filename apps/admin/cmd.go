package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db          *sql.DB
	programSvc  *program.Service
	referralSvc *referral.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|down|status [ARGS] - run database migrations")
	fmt.Println("  createprogram -title TITLE -price PRICE - create a program")
	fmt.Println("  createpolicy -program PROGRAM_ID [FLAGS] - create a referral policy")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createProgramCmd := flag.NewFlagSet("createprogram", flag.ExitOnError)
	programTitle := createProgramCmd.String("title", "", "The program title.")
	programPrice := createProgramCmd.Int64("price", 0, "The program price in minor currency units. 0 makes the program free.")

	createPolicyCmd := flag.NewFlagSet("createpolicy", flag.ExitOnError)
	policyProgram := createPolicyCmd.String("program", "", "The program id the policy applies to.")
	discountType := createPolicyCmd.String("discount-type", "percentage", "Participant discount type: percentage|amount.")
	discountValue := createPolicyCmd.Int64("discount-value", 0, "Participant discount value.")
	commissionType := createPolicyCmd.String("commission-type", "percentage", "Referrer commission type: percentage|amount.")
	commissionValue := createPolicyCmd.Int64("commission-value", 0, "Referrer commission value.")
	maxUsesPerCode := createPolicyCmd.Int("max-uses-per-code", 0, "Per-code usage cap. 0 means unlimited.")
	maxTotalUses := createPolicyCmd.Int("max-total-uses", 0, "Policy-wide usage cap. 0 means unlimited.")
	validFrom := createPolicyCmd.String("valid-from", "", "Validity window start (RFC3339). Defaults to now.")
	validUntil := createPolicyCmd.String("valid-until", "", "Validity window end (RFC3339). Empty means open-ended.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "createprogram":
		if err := createProgramCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *programTitle == "" {
			createProgramCmd.Usage()
			return errHelp
		}
		return cli.createProgram(*programTitle, *programPrice)
	case "createpolicy":
		if err := createPolicyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *policyProgram == "" {
			createPolicyCmd.Usage()
			return errHelp
		}
		return cli.createPolicy(policyOptions{
			programID:       *policyProgram,
			discountType:    *discountType,
			discountValue:   *discountValue,
			commissionType:  *commissionType,
			commissionValue: *commissionValue,
			maxUsesPerCode:  *maxUsesPerCode,
			maxTotalUses:    *maxTotalUses,
			validFrom:       *validFrom,
			validUntil:      *validUntil,
		})
	default:
		cli.printUsage()
		return errHelp
	}
}
