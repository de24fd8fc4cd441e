// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"fmt"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianStats/services/sharpen"
)

var (
	cliBinary string
	serverURL string
)

func TestMain(m *testing.M) {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Printf("e2e: getwd: %v\n", err)
		os.Exit(1)
	}
	cliBinary = filepath.Join(cwd, "sharpq_e2e")

	// The test binary runs from test/e2e/, so the CLI package sits two
	// levels up.
	build := exec.Command("go", "build", "-o", cliBinary, "../../cmd/sharpq")
	if out, err := build.CombinedOutput(); err != nil {
		fmt.Printf("e2e: build sharpq: %v\n%s\n", err, out)
		os.Exit(1)
	}

	// The service runs in-process; httptest binds a real loopback port the
	// CLI subprocess can reach.
	os.Setenv("OTEL_TRACES_EXPORTER", "none")
	os.Setenv("OTEL_METRICS_EXPORTER", "none")
	os.Setenv("ALEUTIAN_INSECURE_MEMORY", "true")
	os.Unsetenv("ALEUTIAN_API_KEY") // vault stays in open mode

	svc, err := sharpen.New(sharpen.Config{StoreInMemory: true, GinMode: "test"}, nil)
	if err != nil {
		fmt.Printf("e2e: start sharpen service: %v\n", err)
		os.Remove(cliBinary)
		os.Exit(1)
	}
	server := httptest.NewServer(svc.Router())
	serverURL = server.URL

	code := m.Run()

	server.Close()
	os.Remove(cliBinary)
	os.Exit(code)
}

// runCLI executes the built binary pointed at the test server. HOME is a
// fresh temp directory so the user's sharpq.yaml stays out of the run.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := exec.Command(cliBinary, args...)
	cmd.Env = append(os.Environ(),
		"ALEUTIAN_SHARPEN_URL="+serverURL,
		"ALEUTIAN_PERSONALITY=machine",
		"HOME="+t.TempDir(),
	)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}
