package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vidsurvey/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transcode.ValidateOutput = false
	cfg.Inference.Command = "/opt/engine/run"

	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected three requirements, got %d", len(reqs))
	}
	if !reqs[1].Optional {
		t.Fatal("ffprobe should be optional when validation is disabled")
	}
	if reqs[2].Command != "/opt/engine/run" {
		t.Fatalf("unexpected engine command %q", reqs[2].Command)
	}
}

func TestParseVersionBanner(t *testing.T) {
	cases := map[string]string{
		"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023\nbuilt with gcc": "6.1.1",
		"ffprobe version n7.0 Copyright":                                          "n7.0",
		"something else":                                                          "",
		"":                                                                        "",
	}
	for banner, want := range cases {
		if got := parseVersionBanner([]byte(banner)); got != want {
			t.Errorf("parseVersionBanner(%q) = %q, want %q", banner, got, want)
		}
	}
}

func TestProbeVersionsRunsFFmpeg(t *testing.T) {
	binDir := t.TempDir()
	ffmpeg := filepath.Join(binDir, "ffmpeg")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 7.1 Copyright'\n")
	if err := os.WriteFile(ffmpeg, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	statuses := []Status{
		{Name: "FFmpeg", Command: ffmpeg, Available: true},
		{Name: "Engine", Command: "python3", Available: true},
	}
	got := ProbeVersions(context.Background(), statuses)
	if got[0].Version != "7.1" {
		t.Fatalf("expected version 7.1, got %q", got[0].Version)
	}
	if got[1].Version != "" {
		t.Fatalf("expected engine untouched, got %q", got[1].Version)
	}
}
