// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	spinFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	spinStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright)
)

const spinInterval = 80 * time.Millisecond

// Spinner animates a status line while work runs. Machine mode prints a
// single "PROGRESS: ..." line instead of animating.
type Spinner struct {
	mu      sync.Mutex
	message string
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner returns a spinner labeled with message. Call Start to begin
// animating and Stop (or a StopWith variant) to end it.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation. A second Start is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("PROGRESS: %s\n", s.message)
		return
	}
	go s.animate()
}

func (s *Spinner) animate() {
	tick := time.NewTicker(spinInterval)
	defer tick.Stop()

	frame := 0
	for {
		select {
		case <-s.stop:
			fmt.Print("\r\033[K")
			close(s.done)
			return
		case <-tick.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Printf("\r%s %s", spinStyle.Render(spinFrames[frame]), msg)
			frame = (frame + 1) % len(spinFrames)
		}
	}
}

// Stop ends the animation and clears the line. Stopping a spinner that
// never started is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if GetPersonality().Level == PersonalityMachine {
		return
	}
	close(s.stop)
	<-s.done
}

// StopWithSuccess stops the spinner and reports success.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	Success(message)
}

// StopWithError stops the spinner and reports failure.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	Error(message)
}

// WithSpinner runs fn under a spinner and reports its outcome.
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()

	if err := fn(); err != nil {
		spin.StopWithError(fmt.Sprintf("%s: %v", message, err))
		return err
	}
	spin.StopWithSuccess(message)
	return nil
}

// ProgressSpinner is a Spinner whose label tracks a completion count.
type ProgressSpinner struct {
	*Spinner
	label string
	total int
}

// NewProgressSpinner returns a spinner that appends "[current/total]"
// to message as SetProgress is called.
func NewProgressSpinner(message string, total int) *ProgressSpinner {
	return &ProgressSpinner{
		Spinner: NewSpinner(message),
		label:   message,
		total:   total,
	}
}

// SetProgress updates the completion count shown after the label.
func (p *ProgressSpinner) SetProgress(current int) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	p.mu.Lock()
	p.message = fmt.Sprintf("%s [%d/%d]", p.label, current, p.total)
	p.mu.Unlock()
}
