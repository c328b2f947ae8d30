package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/meditate001/meditate/cmd/common"
	"github.com/meditate001/meditate/pkg/chime"
	"github.com/urfave/cli"
)

var (
	toneOut string

	toneFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "out, o",
			Usage:       "write the tone to this WAV file instead of playing it",
			Destination: &toneOut,
		},
	}
)

func tone(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	if toneOut != "" {
		if err := writeTone(toneOut); err != nil {
			common.PrintRuntimeErr(ctx, "tone", "write_wav", err)
			return nil
		}
		fmt.Printf("Wrote %s\n", toneOut)
		return nil
	}
	gate := chime.NewGate(audioOutput(), chime.DefaultTone)
	if err := unlockAudio(context.Background(), gate); err != nil {
		common.PrintRuntimeErr(ctx, "tone", "unlock", err)
		return nil
	}
	pctx, cancel := context.WithTimeout(context.Background(), chime.DefaultTone.Duration+DEF_UNLOCK_TIMEOUT)
	defer cancel()
	if err := gate.PlayWait(pctx); err != nil {
		common.PrintRuntimeErr(ctx, "tone", "play", err)
	}
	return nil
}

func writeTone(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := chime.WriteWAV(f, chime.DefaultTone, chime.DefaultSampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
