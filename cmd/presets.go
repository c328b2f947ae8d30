package cmd

import (
	"fmt"
	"time"

	"github.com/meditate001/meditate/pkg/timer"
	"github.com/urfave/cli"
)

func presets(ctx *cli.Context) error {
	fmt.Println("Quick picks:")
	for _, m := range timer.Presets {
		mark := " "
		if time.Duration(m)*time.Minute == timer.DefaultDuration {
			mark = "*"
		}
		fmt.Printf(" %s %2d min\n", mark, m)
	}
	fmt.Printf("\nCustom lengths go up to %d:%02d.\n", timer.MaxCustomMinutes, timer.MaxCustomSeconds)
	return nil
}
