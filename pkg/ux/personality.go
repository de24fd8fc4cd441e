// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel selects how much decoration terminal output carries.
type PersonalityLevel string

const (
	// PersonalityFull uses the complete theme: colors, icons, boxes.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard keeps colors and icons without extra flourish.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal keeps icons only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine emits plain prefixed lines for scripts to parse.
	PersonalityMachine PersonalityLevel = "machine"
)

// Personality is the active output configuration.
type Personality struct {
	Level PersonalityLevel
}

var (
	personalityMu sync.RWMutex
	personality   = Personality{Level: PersonalityFull}
)

// GetPersonality returns the active configuration.
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return personality
}

// SetPersonality replaces the active configuration.
func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	personality = p
}

// SetPersonalityLevel switches the active level.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	personality.Level = level
}

// ParsePersonalityLevel maps a user-supplied name or alias to a level.
// Unrecognized input falls back to standard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality establishes the startup level. The ALEUTIAN_PERSONALITY
// environment variable wins; otherwise piped output gets machine mode and
// an interactive terminal gets the full theme.
func InitPersonality() {
	if env := os.Getenv("ALEUTIAN_PERSONALITY"); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if stdoutIsTTY() {
		SetPersonalityLevel(PersonalityFull)
	} else {
		SetPersonalityLevel(PersonalityMachine)
	}
}

// IsInteractive reports whether prompting the user makes sense: a
// terminal on stdout and a personality that is not machine mode.
func IsInteractive() bool {
	return GetPersonality().Level != PersonalityMachine && stdoutIsTTY()
}

func stdoutIsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
