package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/cfoust/spheres/pkg/config"
	"github.com/cfoust/spheres/pkg/discovery"
	"github.com/cfoust/spheres/pkg/enet"
	"github.com/cfoust/spheres/pkg/server"
	"github.com/cfoust/spheres/pkg/transport"
	"github.com/cfoust/spheres/pkg/ws"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func listen(ctx context.Context, kind config.TransportType, port int, maxPeers int) (transport.Host, error) {
	switch kind {
	case config.TransportWebSocket:
		return ws.Listen(ctx, port, maxPeers)
	default:
		return enet.Listen(port, maxPeers)
	}
}

func serverCommand(configs []string) error {
	conf, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	settings := conf.Server

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// one spare slot so that a client over the limit can be told why
	host, err := listen(ctx, settings.Transport, settings.Port, settings.MaxClients+1)
	if err != nil {
		return fmt.Errorf("failed to listen on %d: %w", settings.Port, err)
	}

	s := server.New(ctx, host, settings.Engine())
	logger := s.Logger()

	if settings.Advertise {
		advertisement, err := discovery.Advertise(
			discovery.Service(string(settings.Transport)),
			settings.Port,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("could not advertise server")
		} else {
			defer advertisement.Shutdown()
		}
	}

	notices := s.Notices.Subscribe()
	defer notices.Done()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.Poll(ctx)
		return nil
	})
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case notice := <-notices.Recv():
				logger.Info().
					Str("event", notice.Type.String()).
					Uint32("client", uint32(notice.Client)).
					Int("connected", s.Registry.Count()).
					Int("issued", s.Registry.Issued()).
					Msg("clients changed")
			}
		}
	})

	logger.Info().
		Str("transport", string(settings.Transport)).
		Int("port", settings.Port).
		Int("maxClients", settings.MaxClients).
		Msg("server started")

	err = group.Wait()
	log.Info().Msg("terminating")
	s.Shutdown()
	return err
}
