package main

import (
	"fmt"
	"os"

	// コンテナにIANAタイムゾーンDBがなくても主催者のタイムゾーンを解決できるようにする
	_ "time/tzdata"

	"github.com/hitoshi/slotbook/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
