package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cfoust/spheres/pkg/client"
	"github.com/cfoust/spheres/pkg/config"
	"github.com/cfoust/spheres/pkg/discovery"
	"github.com/cfoust/spheres/pkg/enet"
	P "github.com/cfoust/spheres/pkg/protocol"
	"github.com/cfoust/spheres/pkg/transport"
	"github.com/cfoust/spheres/pkg/ws"

	"github.com/rs/zerolog/log"
)

// How long one leg of the sweep pattern lasts.
const sweepLeg = 2 * time.Second

// script stands in for a keyboard.
type script struct {
	pattern   string
	elapsed   time.Duration
	quitAfter time.Duration
}

func (s *script) Advance(dt time.Duration) {
	s.elapsed += dt
}

func (s *script) IsKeyDown(key client.Key) bool {
	switch key {
	case client.KeyEscape:
		return s.quitAfter > 0 && s.elapsed >= s.quitAfter
	case client.KeyLeft:
		return s.pattern == "left" || (s.pattern == "sweep" && (s.elapsed/sweepLeg)%2 == 1)
	case client.KeyRight:
		return s.pattern == "right" || (s.pattern == "sweep" && (s.elapsed/sweepLeg)%2 == 0)
	}
	return false
}

// logRenderer writes what would be drawn, at most once per interval.
type logRenderer struct {
	interval time.Duration
	last     time.Time
}

func (r *logRenderer) Draw(objects []P.GameObject) {
	now := time.Now()
	if now.Sub(r.last) < r.interval || len(objects) == 0 {
		return
	}
	r.last = now

	event := log.Info().Int("objects", len(objects)).Stringer("local", objects[0].Position)
	for i, object := range objects[1:] {
		event = event.Stringer(fmt.Sprintf("remote%d", i), object.Position)
	}
	event.Msg("frame")
}

func dial(ctx context.Context, kind config.TransportType) (transport.Host, error) {
	switch kind {
	case config.TransportWebSocket:
		return ws.Dial(ctx), nil
	default:
		return enet.Dial()
	}
}

func clientCommand(configs []string, pattern string, rate int, duration time.Duration) error {
	conf, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	settings := conf.Client

	if rate <= 0 {
		return fmt.Errorf("tick rate must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if settings.Discover {
		browseCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		address, port, err := discovery.Browse(
			browseCtx,
			discovery.Service(string(settings.Transport)),
		)
		cancel()
		if err != nil {
			return fmt.Errorf("could not find a server: %w", err)
		}
		settings.Address = address
		settings.Port = port
	}

	host, err := dial(ctx, settings.Transport)
	if err != nil {
		return err
	}

	c := client.New(ctx, host, settings.Engine())
	c.Start()

	input := &script{pattern: pattern, quitAfter: duration}
	renderer := &logRenderer{interval: time.Second}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return c.Close()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			input.Advance(dt)
			c.Tick(dt, input)
			c.Draw(renderer)

			if c.Quit() {
				return c.Close()
			}

			if c.State() == client.StateFailed {
				c.Close()
				return fmt.Errorf("could not stay connected to %s:%d", settings.Address, settings.Port)
			}
		}
	}
}
