// Demo watch-party client: joins (or creates) a party and logs relayed
// playback events. Useful for poking at a running relay without a browser.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/syncparty/go/internal/client"
	"github.com/mcdev12/syncparty/go/internal/protocol"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "relay WebSocket URL")
	username := flag.String("username", "observer", "display name")
	code := flag.String("code", "", "party code to join; empty creates a new party")
	password := flag.String("password", "", "party password")
	persistent := flag.Bool("persistent", false, "create a persistent party")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := client.DefaultConfig(*serverURL, *username)

	var c *client.Client
	c = client.New(cfg, clockwork.NewRealClock(), nil, client.Handlers{
		OnConnect: func() {
			// A re-join after reconnect is indistinguishable from a
			// fresh join; just replay whichever entry action we started
			// with.
			if *code != "" {
				c.JoinParty(*code, *password)
			} else {
				c.CreateParty(*password, *persistent)
			}
		},
		OnPartyCreated: func(m protocol.PartyCreated) {
			log.Info().Str("party_code", m.PartyCode).Msg("party created")
			*code = m.PartyCode
		},
		OnJoined: func(m protocol.Joined) {
			log.Info().
				Str("party_code", m.PartyCode).
				Int("participants", len(m.Participants)).
				Msg("joined party")
		},
		OnParticipants: func(m protocol.Participants) {
			for _, p := range m.Participants {
				log.Info().
					Str("username", p.Username).
					Bool("synced", p.Synced).
					Msg("participant")
			}
		},
		OnVideoInfo: func(m protocol.VideoInfo) {
			log.Info().
				Str("username", m.Username).
				Str("url", m.Data.URL).
				Str("title", m.Data.Title).
				Msg("shared video changed")
		},
		OnSync: func(m protocol.Sync) {
			ev := log.Info().
				Str("username", m.Username).
				Str("action", string(m.Action))
			if m.Data.CurrentTime != nil {
				ev = ev.Float64("current_time", *m.Data.CurrentTime)
			}
			if m.Data.PlaybackRate != nil {
				ev = ev.Float64("playback_rate", *m.Data.PlaybackRate)
			}
			ev.Msg("sync event")
		},
		OnError: func(m protocol.Error) {
			log.Error().Str("message", m.Message).Msg("relay error")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("client failed")
	}
}
