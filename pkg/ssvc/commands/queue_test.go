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
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ssvc-open-connect/gateway/pkg/ssvc/signals"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSender records lines and lets a test react to each send, typically by
// raising a response signal.
type fakeSender struct {
	onSend func(n int, line string) error
	lines  []string
	mu     sync.Mutex
}

func (f *fakeSender) Send(line string) error {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	n := len(f.lines)
	fn := f.onSend
	f.mu.Unlock()
	if fn != nil {
		return fn(n, line)
	}
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

type fakeResponses struct {
	text string
	mu   sync.Mutex
}

func (f *fakeResponses) LastResponse() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeResponses) set(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
}

type outcome struct {
	err error
	cmd Command
}

type harness struct {
	clock    *clockwork.FakeClock
	bus      *signals.Bus
	sender   *fakeSender
	queue    *Queue
	outcomes chan outcome
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClock(),
		sender:   &fakeSender{},
		outcomes: make(chan outcome, 16),
	}
	h.bus = signals.NewBus(h.clock)
	opts.Clock = h.clock
	opts.Bus = h.bus
	opts.Sender = h.sender
	if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}
	opts.OnOutcome = func(cmd Command, err error) {
		h.outcomes <- outcome{cmd: cmd, err: err}
	}
	q, err := NewQueue(opts)
	require.NoError(t, err)
	h.queue = q
	return h
}

// run starts the consumer and a pump that advances the fake clock by step
// whenever the queue waits on it.
func (h *harness) run(t *testing.T, step time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() {
		_ = h.queue.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		if step <= 0 {
			return
		}
		for {
			if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			h.clock.Advance(step)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
}

func (h *harness) next(t *testing.T) outcome {
	t.Helper()
	select {
	case o := <-h.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no command outcome")
		return outcome{}
	}
}

func TestCommandLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want string
		cmd  Command
	}{
		{cmd: Command{Kind: GetSettings}, want: "GET_SETTINGS\n"},
		{cmd: Command{Kind: Set, Params: "hyst=0.20,decrement=10"}, want: "SET hyst=0.20,decrement=10\n"},
		{cmd: Command{Kind: Version}, want: "VERSION\n"},
		{cmd: Command{Kind: Stop}, want: "STOP\n"},
		{cmd: Command{Kind: Start}, want: "START\n"},
		{cmd: Command{Kind: Pause}, want: "PAUSE\n"},
		{cmd: Command{Kind: Resume}, want: "RESUME\n"},
		{cmd: Command{Kind: Next}, want: "NEXT\n"},
		{cmd: Command{Kind: At}, want: "AT\n"},
		{cmd: Command{Kind: Status, Params: "hello"}, want: "STATUS hello\n"},
		{cmd: Command{Kind: At, Params: "ignored"}, want: "AT\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmd.Line())
	}
}

func TestExpectedSignal(t *testing.T) {
	t.Parallel()

	assert.Equal(t, signals.SettingsReady, GetSettings.Expected())
	assert.Equal(t, signals.VersionReady, Version.Expected())
	for _, k := range []Kind{At, Next, Pause, Stop, Start, Resume, Set, Status} {
		assert.Equal(t, signals.CommandOk, k.Expected(), k.String())
	}
}

func TestNewQueueValidation(t *testing.T) {
	t.Parallel()

	_, err := NewQueue(Options{Bus: signals.NewBus(nil)})
	require.Error(t, err)
	_, err = NewQueue(Options{Sender: &fakeSender{}})
	require.Error(t, err)
}

func TestCommandSucceedsOnExpectedSignal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	responses := &fakeResponses{}
	(&Interpreters{Responses: responses}).Register(h.queue)
	h.sender.onSend = func(_ int, _ string) error {
		responses.set(`{"type":"response","request":"AT","result":"OK"}`)
		h.bus.Set(signals.CommandOk)
		return nil
	}
	h.run(t, 0)

	require.NoError(t, h.queue.At())
	o := h.next(t)
	require.NoError(t, o.err)
	assert.Equal(t, []string{"AT\n"}, h.sender.sent())
}

func TestTimeoutExhaustsExactlyAttempts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Timeout: 5 * time.Second})
	h.run(t, 5*time.Second)

	require.NoError(t, h.queue.Enqueue(Stop, "", 3, 0))
	o := h.next(t)

	require.ErrorIs(t, o.err, ErrExhausted)
	require.ErrorIs(t, o.err, ErrCommandTimeout)
	assert.Equal(t, []string{"STOP\n", "STOP\n", "STOP\n"}, h.sender.sent())
	assert.Equal(t, 0, o.cmd.Attempts)
}

func TestCommandErrorRetriesUntilAccepted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	responses := &fakeResponses{}
	(&Interpreters{Responses: responses}).Register(h.queue)
	h.sender.onSend = func(n int, _ string) error {
		if n == 1 {
			responses.set(`{"type":"response","request":"NEXT","result":"ERROR"}`)
			h.bus.Set(signals.CommandError)
			return nil
		}
		responses.set(`{"type":"response","request":"NEXT","result":"OK"}`)
		h.bus.Set(signals.CommandOk)
		return nil
	}
	h.run(t, DefaultBackoff)

	require.NoError(t, h.queue.Next())
	o := h.next(t)
	require.NoError(t, o.err)
	assert.Len(t, h.sender.sent(), 2)
	assert.Equal(t, DefaultAttempts-2, o.cmd.Attempts)
}

func TestRejectedEveryTimeIsExhausted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	(&Interpreters{Responses: &fakeResponses{}}).Register(h.queue)
	h.sender.onSend = func(_ int, _ string) error {
		h.bus.Set(signals.CommandError)
		return nil
	}
	h.run(t, DefaultBackoff)

	require.NoError(t, h.queue.Enqueue(Pause, "", 2, 0))
	o := h.next(t)
	require.ErrorIs(t, o.err, ErrCommandRejected)
	assert.Len(t, h.sender.sent(), 2)
}

func TestWriteFailureCountsAgainstBudget(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("serial write incomplete")
	h := newHarness(t, Options{})
	h.sender.onSend = func(_ int, _ string) error { return writeErr }
	h.run(t, DefaultBackoff)

	require.NoError(t, h.queue.Resume())
	o := h.next(t)
	require.ErrorIs(t, o.err, ErrExhausted)
	require.ErrorIs(t, o.err, writeErr)
	assert.Len(t, h.sender.sent(), DefaultAttempts)
	assert.Zero(t, o.cmd.Attempts)
}

func TestStaleSignalDoesNotCompleteCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Timeout: time.Second})
	h.bus.Set(signals.CommandOk)
	h.run(t, time.Second)

	require.NoError(t, h.queue.Enqueue(Start, "", 1, 0))
	o := h.next(t)
	require.ErrorIs(t, o.err, ErrCommandTimeout)
}

func TestCommandsProcessedInOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	responses := &fakeResponses{text: `{"result":"OK"}`}
	(&Interpreters{Responses: responses}).Register(h.queue)
	h.sender.onSend = func(_ int, _ string) error {
		h.bus.Set(signals.CommandOk)
		return nil
	}

	require.NoError(t, h.queue.Pause())
	require.NoError(t, h.queue.Set("hyst=0.20"))
	require.NoError(t, h.queue.Resume())
	h.run(t, 0)

	var kinds []Kind
	for range 3 {
		kinds = append(kinds, h.next(t).cmd.Kind)
	}
	assert.Equal(t, []Kind{Pause, Set, Resume}, kinds)
	assert.Equal(t, []string{"PAUSE\n", "SET hyst=0.20\n", "RESUME\n"}, h.sender.sent())
}

func TestEnqueueFailsWhenFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Length: 1})
	require.NoError(t, h.queue.At())

	done := make(chan error, 1)
	go func() { done <- h.queue.At() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(DefaultEnqueueTimeout)

	require.ErrorIs(t, <-done, ErrQueueFull)
	assert.Equal(t, 1, h.queue.Len())
}

func TestEnqueueRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	require.ErrorIs(t, h.queue.Enqueue(Kind(200), "", 0, 0), ErrUnknownCommand)
}

func TestConsumerWaitsStartupDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{StartupDelay: DefaultStartupDelay})
	h.sender.onSend = func(_ int, _ string) error {
		h.bus.Set(signals.VersionReady)
		return nil
	}
	h.queue.Register(signals.VersionReady, func(context.Context, Command) bool { return true })
	require.NoError(t, h.queue.Version())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.queue.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, h.clock.BlockUntilContext(waitCtx, 1))
	assert.Empty(t, h.sender.sent())

	h.clock.Advance(DefaultStartupDelay - time.Millisecond)
	assert.Empty(t, h.sender.sent())
	h.clock.Advance(time.Millisecond)

	require.NoError(t, h.next(t).err)
	assert.Equal(t, []string{"VERSION\n"}, h.sender.sent())

	cancel()
	require.NoError(t, <-done)
}
