// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"sync"
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	cases := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"FULL", PersonalityFull},
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"s", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"q", PersonalityMachine},
		{" machine ", PersonalityMachine},
		{"", PersonalityStandard},
		{"nonsense", PersonalityStandard},
	}
	for _, tc := range cases {
		if got := ParsePersonalityLevel(tc.in); got != tc.want {
			t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSetAndGetPersonality(t *testing.T) {
	prev := GetPersonality()
	t.Cleanup(func() { SetPersonality(prev) })

	SetPersonality(Personality{Level: PersonalityMinimal})
	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("Level = %q after SetPersonality", got)
	}

	SetPersonalityLevel(PersonalityMachine)
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("Level = %q after SetPersonalityLevel", got)
	}
}

func TestInitPersonalityFromEnv(t *testing.T) {
	prev := GetPersonality()
	t.Cleanup(func() { SetPersonality(prev) })

	t.Setenv("ALEUTIAN_PERSONALITY", "quiet")
	InitPersonality()
	if got := GetPersonality().Level; got != PersonalityMachine {
		t.Errorf("Level = %q, want machine", got)
	}

	t.Setenv("ALEUTIAN_PERSONALITY", "minimal")
	InitPersonality()
	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("Level = %q, want minimal", got)
	}
}

func TestInitPersonalityWithoutEnv(t *testing.T) {
	prev := GetPersonality()
	t.Cleanup(func() { SetPersonality(prev) })

	// Without the env var the level depends on whether stdout is a
	// terminal, so only the two legal outcomes are checked.
	t.Setenv("ALEUTIAN_PERSONALITY", "")
	InitPersonality()
	got := GetPersonality().Level
	if got != PersonalityFull && got != PersonalityMachine {
		t.Errorf("Level = %q, want full or machine", got)
	}
}

func TestIsInteractiveMachineMode(t *testing.T) {
	setLevel(t, PersonalityMachine)
	if IsInteractive() {
		t.Error("IsInteractive() = true in machine mode")
	}
}

func TestPersonalityConcurrentAccess(t *testing.T) {
	prev := GetPersonality()
	t.Cleanup(func() { SetPersonality(prev) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetPersonalityLevel(PersonalityStandard)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = GetPersonality()
			}
		}()
	}
	wg.Wait()

	if got := GetPersonality().Level; got != PersonalityStandard {
		t.Errorf("Level = %q after concurrent writes", got)
	}
}
