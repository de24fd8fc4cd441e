package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
)

// initCmd interactively creates or updates ~/.aleutianstats/sharpq.yaml.
//
// Unlike every other command, init tolerates a broken config file: it
// exists to write a fresh one.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create or update the sharpq config",
	Long: `Walks through the sharpq configuration: service address, default
grid step, watch directory, and optional Google Cloud Storage backups.
Existing values are pre-filled and the result is written back to the
config file.`,
	Run: runInitCommand,
}

// runInitCommand walks the form and saves the result.
func runInitCommand(cmd *cobra.Command, args []string) {
	if !ux.IsInteractive() {
		fmt.Fprintln(os.Stderr, "sharpq init needs an interactive terminal; edit the config file directly instead")
		os.Exit(1)
	}

	// Pre-fill from the loaded config when one exists; a broken or
	// missing config starts from defaults.
	cfg := config.DefaultConfig()
	if config.Global.Server.URL != "" {
		cfg = config.Global
	}

	serverURL := cfg.Server.GetURL()
	apiKey := cfg.Server.APIKey
	step := cfg.Compute.GetStep()
	watchDir := cfg.Watch.Dir
	storePath := cfg.Backup.GetStorePath()
	useGCS := cfg.Backup.GCS.Bucket != ""
	gcsProject := cfg.Backup.GCS.Project
	gcsBucket := cfg.Backup.GCS.Bucket
	gcsKeyPath := cfg.Backup.GCS.KeyPath
	gcsPrefix := cfg.Backup.GCS.Prefix

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sharpen service URL").
				Description("Where the sharpen daemon listens.").
				Placeholder(config.DefaultServerURL).
				Value(&serverURL).
				Validate(validateServerURL),
			huh.NewInput().
				Title("API key").
				Description("Sent as a Bearer token; leave empty for an open service.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewSelect[float64]().
				Title("Default grid step").
				Description("Spacing of the candidate FDR levels for local compute.").
				Options(stepOptions(step)...).
				Value(&step),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Watch directory").
				Description("Default directory for 'sharpq watch'.").
				Value(&watchDir),
			huh.NewInput().
				Title("Run store path").
				Description("Badger directory used by backups and 'sharpq watch --persist'.").
				Value(&storePath),
			huh.NewConfirm().
				Title("Upload backups to Google Cloud Storage?").
				Value(&useGCS),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("GCS project").
				Value(&gcsProject),
			huh.NewInput().
				Title("GCS bucket").
				Value(&gcsBucket),
			huh.NewInput().
				Title("Service account key path").
				Description("JSON key used for uploads.").
				Value(&gcsKeyPath).
				Validate(validateKeyPath),
			huh.NewInput().
				Title("Object prefix").
				Placeholder("sharpen-backups").
				Value(&gcsPrefix),
		).WithHideFunc(func() bool { return !useGCS }),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Aborted; config unchanged.")
			return
		}
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		os.Exit(1)
	}

	cfg.Server.URL = serverURL
	cfg.Server.APIKey = apiKey
	cfg.Compute.Step = step
	cfg.Watch.Dir = watchDir
	cfg.Backup.StorePath = storePath
	if useGCS {
		cfg.Backup.GCS = config.GCSConfig{
			Project: gcsProject,
			Bucket:  gcsBucket,
			KeyPath: gcsKeyPath,
			Prefix:  gcsPrefix,
		}
	} else {
		cfg.Backup.GCS = config.GCSConfig{}
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save config: %v\n", err)
		os.Exit(1)
	}

	if path, err := config.Path(); err == nil {
		ux.Success("Configuration written to " + path)
	} else {
		ux.Success("Configuration written")
	}
	ux.Muted("Edit it any time or re-run 'sharpq init'")
}

// validateServerURL accepts full http(s) URLs only.
func validateServerURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a full URL, e.g. %s", config.DefaultServerURL)
	}
	return nil
}

// validateKeyPath requires an existing file; GCS uploads cannot work
// without the service account key.
func validateKeyPath(s string) error {
	if s == "" {
		return fmt.Errorf("a service account key is required for uploads")
	}
	if _, err := os.Stat(s); err != nil {
		return fmt.Errorf("no file at %s", s)
	}
	return nil
}

// stepOptions lists the common grid steps, appending the current value
// when it is not one of them.
func stepOptions(current float64) []huh.Option[float64] {
	steps := []float64{0.001, 0.005, 0.01, 0.05}
	opts := make([]huh.Option[float64], 0, len(steps)+1)
	seen := false
	for _, s := range steps {
		label := strconv.FormatFloat(s, 'g', -1, 64)
		if s == 0.001 {
			label += " (reference grid)"
		}
		if s == current {
			seen = true
		}
		opts = append(opts, huh.NewOption(label, s))
	}
	if !seen {
		opts = append(opts,
			huh.NewOption(strconv.FormatFloat(current, 'g', -1, 64)+" (current)", current))
	}
	return opts
}
