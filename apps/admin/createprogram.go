package main

import (
	"context"
	"fmt"

	"github.com/mafunzo/mafunzo/core/program"
)

func (cli *commandLine) createProgram(title string, price int64) error {
	np := program.NewProgram{
		Title: title,
		Price: price,
	}
	if err := np.Validate(); err != nil {
		return err
	}

	p, err := cli.programSvc.Create(context.Background(), np)
	if err != nil {
		return err
	}
	fmt.Printf("program created: %s (%s)\n", p.Title, p.ID)
	return nil
}
