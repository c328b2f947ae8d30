package cmd

import "time"

const (
	DEF_PORT             = 8420
	DEF_STORE            = "fs"
	DEF_SHUTDOWN_TIMEOUT = 10 * time.Second
	DEF_UNLOCK_TIMEOUT   = 5 * time.Second
	DEF_REMOTE_ADDR      = "127.0.0.1:8420"
	DEF_CACHE_DB         = "cache.db"
)

const DESCRIPTION = `
Meditate is a quiet countdown timer for meditation sessions. It runs
in the terminal as a progress ring, or serves a small web app that
keeps working offline once its assets are cached.
`

const (
	SitDescription = `The sit command runs a countdown in the terminal and
plays a soft tone when the session ends.

While it runs, type a command and press enter:
        p        pause
        r        resume
        x        reset to the selected length
        s        start again after a reset
        t        play the test tone
        m[:ss]   select a new length, e.g. "10" or "7:30"
        q        quit

Example:
        meditate sit --preset 10
        meditate sit --minutes 7 --seconds 30

`
	ServeDescription = `The serve command caches the web app, activates the
cache and serves it together with the timer RPC endpoint.

The timer runs on the server; every open page sees the same session.
Pages talk to it over a JSON-RPC WebSocket at /jsonrpc/ws.

Example:
        meditate serve --port 8420
        meditate serve --origin https://example.com/meditate/ --store sqlite

`
	CacheDescription = `The cache command manages the offline asset cache
used by "meditate serve".

Example:
        meditate cache install
        meditate cache list
        meditate cache match /app.js
        meditate cache purge

`
	ToneDescription = `The tone command plays the end-of-session tone, or
writes it to a WAV file with --out.

Example:
        meditate tone
        meditate tone --out chime.wav

`
	PresetsDescription = `The presets command lists the quick-pick session
lengths. The default one is marked with an asterisk.

Example:
        meditate presets

`
	RemoteDescription = `The remote command controls the timer of a running
"meditate serve" instance.

Methods: status, start, pause, resume, reset, select, refresh,
unlock, tone, version, watch.

Example:
        meditate remote status
        meditate remote start --minutes 20
        meditate remote --addr 127.0.0.1:9000 watch

`
)
