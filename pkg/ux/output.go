// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux styles terminal output for the AleutianStats CLI. Every
// helper degrades with the active personality level, down to plain
// prefixed lines in machine mode so piped output stays parseable.
package ux

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian palette: ocean teals plus the usual semantic colors.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealVibrant = lipgloss.Color("#1D9EA3")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")
	ColorWarning     = lipgloss.Color("#F4D03F")
	ColorError       = lipgloss.Color("#E74C3C")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright)
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(ColorSlate)
	styleSuccess = lipgloss.NewStyle().Foreground(ColorTealBright)
	styleWarning = lipgloss.NewStyle().Foreground(ColorWarning)
	styleError   = lipgloss.NewStyle().Foreground(ColorError)

	styleFrame = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1)
)

// Icon is a single-glyph status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
)

var iconStyles = map[Icon]lipgloss.Style{
	IconSuccess: styleSuccess,
	IconWarning: styleWarning,
	IconError:   styleError,
}

func (i Icon) paint() string {
	if st, ok := iconStyles[i]; ok {
		return st.Render(string(i))
	}
	return string(i)
}

// line formats only when arguments are present, so pre-formatted text
// containing '%' passes through untouched.
func line(format string, args []any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// status prints an icon-tagged line, degrading to "PREFIX: text" on w
// in machine mode.
func status(w io.Writer, prefix string, icon Icon, st lipgloss.Style, text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(w, "%s: %s\n", prefix, text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", icon.paint(), text)
	default:
		fmt.Printf("%s %s\n", icon.paint(), st.Render(text))
	}
}

// Success prints a checkmarked line, or "OK: ..." on stdout in machine mode.
func Success(format string, args ...any) {
	status(os.Stdout, "OK", IconSuccess, styleSuccess, line(format, args))
}

// Warning prints a warning line, or "WARN: ..." on stderr in machine mode.
func Warning(format string, args ...any) {
	status(os.Stderr, "WARN", IconWarning, styleWarning, line(format, args))
}

// Error prints an error line, or "ERROR: ..." on stderr in machine mode.
func Error(format string, args ...any) {
	status(os.Stderr, "ERROR", IconError, styleError, line(format, args))
}

// Title prints a bold heading. Machine mode suppresses it.
func Title(format string, args ...any) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(styleTitle.Render(line(format, args)))
}

// Info prints a detail line. Machine mode drops the gutter mark.
func Info(format string, args ...any) {
	text := line(format, args)
	if GetPersonality().Level == PersonalityMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", styleMuted.Render("│"), text)
}

// Muted prints secondary text. Machine mode suppresses it.
func Muted(format string, args ...any) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(styleMuted.Render(line(format, args)))
}

// Box prints titled content inside a rounded frame, or "title: content"
// in machine mode.
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	fmt.Println(styleFrame.Width(60).Render(styleTitle.Render(title) + "\n" + content))
}

// FileStatus prints one dataset file with its processing outcome.
// Machine mode emits a tab-separated icon/path/reason record.
func FileStatus(path string, icon Icon, reason string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Printf("%s\t%s\t%s\n", icon, path, reason)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", icon.paint(), path)
	default:
		if reason == "" {
			fmt.Printf("%s %s\n", icon.paint(), path)
		} else {
			fmt.Printf("%s %s %s\n", icon.paint(), path, styleMuted.Render("("+reason+")"))
		}
	}
}

// Summary prints batch completion counts.
func Summary(succeeded, failed, total int) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("SUMMARY: succeeded=%d failed=%d total=%d\n", succeeded, failed, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s\n",
		styleSuccess.Render(strconv.Itoa(succeeded)), styleMuted.Render("succeeded"),
		styleWarning.Render(strconv.Itoa(failed)), styleMuted.Render("failed"),
		styleBold.Render(strconv.Itoa(total)), styleMuted.Render("total"))
}

// Discoveries prints how many hypotheses cleared a significance threshold.
func Discoveries(threshold float64, count, total int) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("DISCOVERIES: threshold=%g count=%d total=%d\n", threshold, count, total)
		return
	}
	fmt.Printf("%s %s at q ≤ %s %s\n",
		styleTitle.Render(strconv.Itoa(count)),
		styleMuted.Render("of "+strconv.Itoa(total)),
		styleBold.Render(strconv.FormatFloat(threshold, 'g', -1, 64)),
		styleMuted.Render("significant"))
}
