package cmd

import (
	"fmt"
	"runtime"

	"github.com/meditate001/meditate/cmd/common"
	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

// buildInfo is reported by "meditate serve" over RPC.
var buildInfo BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	buildInfo = bArgs
	app := cli.App{
		Name:                  "meditate",
		HelpName:              "meditate",
		Usage:                 "A calm countdown timer for meditation.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "meditate <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:                   "sit",
				Aliases:                []string{"s"},
				Usage:                  "run a session in the terminal",
				Description:            SitDescription,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Action:                 sit,
				UseShortOptionHandling: true,
				Flags:                  sitFlags,
			},
			{
				Name:               "serve",
				Usage:              "serve the offline web app and timer",
				Description:        ServeDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             serve,
				Flags:              serveFlags,
			},
			{
				Name:               "cache",
				Usage:              "manage the offline asset cache",
				Description:        CacheDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands: []cli.Command{
					{
						Name:   "install",
						Usage:  "fetch every asset into a fresh cache",
						Action: cacheInstall,
						Flags:  cacheFlags,
					},
					{
						Name:   "activate",
						Usage:  "make the installed cache current and drop older ones",
						Action: cacheActivate,
						Flags:  cacheFlags,
					},
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "list caches and their entries",
						Action:  cacheList,
						Flags:   cacheFlags,
					},
					{
						Name:      "match",
						Usage:     "look a path up in the current cache",
						ArgsUsage: "<path>",
						Action:    cacheMatch,
						Flags:     cacheFlags,
					},
					{
						Name:   "purge",
						Usage:  "delete every cache",
						Action: cachePurge,
						Flags:  cacheFlags,
					},
				},
			},
			{
				Name:               "tone",
				Aliases:            []string{"t"},
				Usage:              "play or export the end tone",
				Description:        ToneDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             tone,
				Flags:              toneFlags,
			},
			{
				Name:               "presets",
				Aliases:            []string{"p"},
				Usage:              "list the quick-pick session lengths",
				Description:        PresetsDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             presets,
			},
			{
				Name:               "remote",
				Aliases:            []string{"r"},
				Usage:              "control a running server",
				Description:        RemoteDescription,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				ArgsUsage:          "<method>",
				Action:             remoteCmd,
				Flags:              remoteFlags,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of meditate",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:                 sit,
		Flags:                  sitFlags,
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
