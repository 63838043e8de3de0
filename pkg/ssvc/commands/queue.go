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

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/ssvc-open-connect/gateway/pkg/helpers/syncutil"
	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
)

const (
	DefaultLength         = 10
	DefaultAttempts       = 3
	DefaultTimeout        = 5 * time.Second
	DefaultBackoff        = 2 * time.Second
	DefaultEnqueueTimeout = time.Second
	DefaultStartupDelay   = 6 * time.Second
)

// Sender transmits one protocol line.
type Sender interface {
	Send(line string) error
}

// Interpreter decides whether a fired response signal completes cmd.
type Interpreter func(ctx context.Context, cmd Command) bool

type Options struct {
	Sender         Sender
	Bus            *signals.Bus
	Clock          clockwork.Clock
	OnOutcome      func(cmd Command, err error)
	Length         int
	Attempts       int
	Timeout        time.Duration
	Backoff        time.Duration
	EnqueueTimeout time.Duration
	StartupDelay   time.Duration
}

type Queue struct {
	opts         Options
	pending      chan Command
	interpreters map[signals.Signal]Interpreter
	mu           syncutil.RWMutex
}

func NewQueue(opts Options) (*Queue, error) {
	if opts.Sender == nil {
		return nil, errors.New("command queue requires a sender")
	}
	if opts.Bus == nil {
		return nil, errors.New("command queue requires a signal bus")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Length <= 0 {
		opts.Length = DefaultLength
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if opts.StartupDelay < 0 {
		opts.StartupDelay = 0
	}

	return &Queue{
		opts:         opts,
		pending:      make(chan Command, opts.Length),
		interpreters: make(map[signals.Signal]Interpreter),
	}, nil
}

// Register installs the interpreter invoked when sig fires for an in-flight
// command. A later registration for the same signal replaces the earlier one.
func (q *Queue) Register(sig signals.Signal, fn Interpreter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interpreters[sig] = fn
}

func (q *Queue) interpreter(sig signals.Signal) (Interpreter, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	fn, ok := q.interpreters[sig]
	return fn, ok
}

// Len is the number of commands waiting to be sent.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Enqueue adds a command, waiting at most EnqueueTimeout for room. Zero
// attempts or timeout use the queue defaults.
func (q *Queue) Enqueue(kind Kind, params string, attempts int, timeout time.Duration) error {
	if kind >= kindCount {
		return fmt.Errorf("%w: kind %d", ErrUnknownCommand, kind)
	}
	if attempts <= 0 {
		attempts = q.opts.Attempts
	}
	if timeout <= 0 {
		timeout = q.opts.Timeout
	}
	cmd := Command{Kind: kind, Params: params, Attempts: attempts, Timeout: timeout}

	select {
	case q.pending <- cmd:
		log.Debug().Str("command", kind.String()).Msg("command enqueued")
		return nil
	default:
	}

	timer := q.opts.Clock.NewTimer(q.opts.EnqueueTimeout)
	defer timer.Stop()
	select {
	case q.pending <- cmd:
		log.Debug().Str("command", kind.String()).Msg("command enqueued")
		return nil
	case <-timer.Chan():
		log.Error().Str("command", kind.String()).Msg("failed to enqueue command, queue is full")
		return ErrQueueFull
	}
}

// Run consumes the queue until ctx is done. The first command is popped no
// sooner than StartupDelay after Run starts.
func (q *Queue) Run(ctx context.Context) error {
	if !q.sleep(ctx, q.opts.StartupDelay) {
		return nil
	}
	log.Info().Msg("command queue consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-q.pending:
			err := q.process(ctx, &cmd)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				log.Error().Err(err).Str("command", cmd.Kind.String()).Msg("command dropped")
			}
			if q.opts.OnOutcome != nil {
				q.opts.OnOutcome(cmd, err)
			}
		}
	}
}

// process spends cmd.Attempts in place so the outcome hook sees what is left.
func (q *Queue) process(ctx context.Context, cmd *Command) error {
	expected := cmd.Kind.Expected()
	want := signals.SetOf(expected, signals.CommandError)
	lastErr := ErrCommandTimeout
	sent := 0

	log.Info().Str("command", cmd.Kind.String()).Int("attempts", cmd.Attempts).Msg("processing command")
	for cmd.Attempts > 0 {
		cmd.Attempts--
		sent++

		// responses that arrived while nothing was waiting belong to
		// an earlier command
		q.opts.Bus.Clear(expected, signals.CommandError)

		if err := q.opts.Sender.Send(cmd.Line()); err != nil {
			log.Error().Err(err).Str("command", cmd.Kind.String()).Int("attempt", sent).Msg("failed to send command")
			lastErr = err
		} else {
			fired, err := q.opts.Bus.WaitAny(ctx, want, cmd.Timeout)
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, signals.ErrTimeout):
				log.Warn().Str("command", cmd.Kind.String()).Int("attempt", sent).
					Dur("timeout", cmd.Timeout).Msg("command timed out")
				lastErr = ErrCommandTimeout
			case err != nil:
				lastErr = err
			default:
				if q.interpret(ctx, *cmd, fired, expected) {
					log.Debug().Str("command", cmd.Kind.String()).Int("attempt", sent).Msg("command completed")
					return nil
				}
				lastErr = ErrCommandRejected
			}
		}

		if cmd.Attempts > 0 && !q.sleep(ctx, q.opts.Backoff) {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, cmd.Kind, sent, lastErr)
}

// interpret runs the interpreter of the signal that fired. The expected
// signal wins when both fired.
func (q *Queue) interpret(ctx context.Context, cmd Command, fired signals.Set, expected signals.Signal) bool {
	sig := signals.CommandError
	if fired.Has(expected) {
		sig = expected
	}

	fn, ok := q.interpreter(sig)
	if !ok {
		log.Warn().Str("signal", sig.String()).Msg("no interpreter registered")
		return sig != signals.CommandError
	}
	return fn(ctx, cmd)
}

func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := q.opts.Clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
