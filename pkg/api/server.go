// SSVC Gateway
// Copyright (c) 2026 The SSVC Gateway Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of SSVC Gateway.
//
// SSVC Gateway is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SSVC Gateway is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SSVC Gateway.  If not, see <http://www.gnu.org/licenses/>.

// Package api serves the gateway's HTTP and WebSocket surface to the UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/api/middleware"
	"github.com/ssvc-open-connect/gateway/pkg/config"
	"github.com/ssvc-open-connect/gateway/pkg/notify"
	"github.com/ssvc-open-connect/gateway/pkg/profiles"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/rectification"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/settings"
)

const (
	streamBuffer    = 32
	shutdownTimeout = 5 * time.Second
)

type SettingsService interface {
	Export() settings.Export
	UpdateParams(params map[string]json.RawMessage) (settings.UpdateResult, error)
	ApplyFromJSON(data []byte) error
}

type ProcessService interface {
	Status() rectification.Status
	Report() rectification.Report
}

type CommandService interface {
	Dispatch(name, params string) error
	GetSettings() error
}

type LinkService interface {
	Degraded() bool
}

type ProfileService interface {
	List() ([]profiles.Metadata, error)
	Active() (profiles.Metadata, error)
	Content(id string) (json.RawMessage, error)
	Create(name string, content json.RawMessage) (profiles.Metadata, error)
	Copy(srcID, name string) (profiles.Metadata, error)
	Rename(id, name string) error
	Delete(id string) error
	Apply(id string) error
	SaveCurrent(id string) error
	UpdateContent(id string, content json.RawMessage) error
}

// Stream is the event source fanned out to WebSocket clients.
type Stream interface {
	Subscribe(bufferSize int) (msgs <-chan notify.Message, id int)
	Unsubscribe(id int)
}

type Options struct {
	Settings          SettingsService
	Process           ProcessService
	Commands          CommandService
	Link              LinkService
	Profiles          ProfileService
	Stream            Stream
	Clock             clockwork.Clock
	Listen            string
	AllowedOrigins    []string
	AllowedIPs        []string
	RequestsPerMinute int
}

type Server struct {
	router  chi.Router
	ws      *melody.Melody
	limiter *middleware.IPRateLimiter
	opts    Options
}

func NewServer(opts Options) (*Server, error) {
	if opts.Settings == nil || opts.Process == nil || opts.Commands == nil || opts.Link == nil {
		return nil, errors.New("api: settings, process, commands and link are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = config.BaseDefaults.API.RequestsPerMinute
	}
	s := &Server{
		opts:    opts,
		ws:      melody.New(),
		limiter: middleware.NewIPRateLimiter(opts.RequestsPerMinute, opts.Clock),
	}
	s.ws.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.ws.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, handleWSMessage))
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	if filter := middleware.NewIPFilter(s.opts.AllowedIPs); !filter.Empty() {
		r.Use(middleware.HTTPIPFilterMiddleware(filter))
	}
	r.Use(chimiddleware.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.APIRequestTimeout))
		r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))

		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handleUpdateSettings)
		r.Post("/api/settings/apply", s.handleApplySettings)
		r.Get("/api/rectification/status", s.handleStatus)
		r.Get("/api/rectification/metrics", s.handleMetrics)
		r.Post("/api/commands", s.handleCommand)
		r.Get("/api/link", s.handleLink)
		if s.opts.Profiles != nil {
			r.Route("/api/profiles", s.profileRoutes)
		}
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.HandleRequest(w, r); err != nil {
		log.Error().Err(err).Msg("handling websocket request")
	}
}

func handleWSMessage(session *melody.Session, msg []byte) {
	if string(msg) == "ping" {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
	}
}

// broadcast relays stream events to every WebSocket client until ctx is
// done or the stream closes.
func (s *Server) broadcast(ctx context.Context) {
	if s.opts.Stream == nil {
		return
	}
	msgs, id := s.opts.Stream.Subscribe(streamBuffer)
	defer s.opts.Stream.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("type", msg.Type).Msg("marshalling stream event")
				continue
			}
			if err := s.ws.Broadcast(data); err != nil {
				log.Error().Err(err).Msg("broadcasting stream event")
			}
		}
	}
}

// Run serves until ctx is done, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.broadcast(ctx)
	}()
	go func() {
		defer wg.Done()
		s.limiter.RunCleanup(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := s.ws.Close(); err != nil {
		log.Debug().Err(err).Msg("closing websocket sessions")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	<-errCh
	return nil
}
