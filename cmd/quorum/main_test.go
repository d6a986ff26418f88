package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quorum/internal/ident"
)

func setupCLIConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n",
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		"127.0.0.1:0",
	)
	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got %q", want, output)
	}
}

// createdTaskID pulls the identifier out of the "Created task <id> ..." line.
func createdTaskID(t *testing.T, output string) string {
	t.Helper()
	fields := strings.Fields(output)
	if len(fields) < 3 || fields[0] != "Created" {
		t.Fatalf("unexpected create output: %q", output)
	}
	return fields[2]
}

func TestCLITaskLifecycle(t *testing.T) {
	configPath := setupCLIConfig(t)
	owner := ident.New().String()
	gid := ident.New().String()
	alice := ident.New().String()
	bob := ident.New().String()

	out, _, err := runCLI(t, configPath, "task", "create",
		"--uid", owner,
		"--gid", gid,
		"--kind", "expense",
		"--threshold", "2",
		"--assignee", alice,
		"--assignee", bob,
		"--message", "Q3 travel reimbursement",
		"--payload", `{"amount": 420}`,
	)
	if err != nil {
		t.Fatalf("task create: %v", err)
	}
	requireContains(t, out, "Created task")
	requireContains(t, out, "threshold 2")
	taskID := createdTaskID(t, out)

	out, _, err = runCLI(t, configPath, "task", "get", "--uid", owner, "--id", taskID)
	if err != nil {
		t.Fatalf("task get: %v", err)
	}
	requireContains(t, out, "Status:    processing")
	requireContains(t, out, "Q3 travel reimbursement")
	requireContains(t, out, `"amount"`)

	out, _, err = runCLI(t, configPath, "task", "list", "--uid", owner)
	if err != nil {
		t.Fatalf("task list: %v", err)
	}
	requireContains(t, out, taskID)
	requireContains(t, out, "expense")

	out, _, err = runCLI(t, configPath, "task", "vote",
		"--uid", owner, "--id", taskID, "--voter", alice, "--decision", "approve")
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}
	requireContains(t, out, "task is processing (1/2 approvals)")

	out, _, err = runCLI(t, configPath, "task", "vote",
		"--uid", owner, "--id", taskID, "--voter", bob, "--decision", "approve")
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	requireContains(t, out, "task is resolved (2/2 approvals)")

	out, _, err = runCLI(t, configPath, "notify", "list", "--uid", alice)
	if err != nil {
		t.Fatalf("notify list: %v", err)
	}
	requireContains(t, out, taskID)
	requireContains(t, out, "resolved")

	out, _, err = runCLI(t, configPath, "notify", "group", "--gid", gid)
	if err != nil {
		t.Fatalf("notify group: %v", err)
	}
	requireContains(t, out, taskID)

	out, _, err = runCLI(t, configPath, "task", "delete", "--uid", owner, "--id", taskID)
	if err != nil {
		t.Fatalf("task delete: %v", err)
	}
	requireContains(t, out, "Deleted task")

	if _, _, err = runCLI(t, configPath, "task", "get", "--uid", owner, "--id", taskID); err == nil {
		t.Fatal("expected get after delete to fail")
	}
}

func TestCLITaskRejection(t *testing.T) {
	configPath := setupCLIConfig(t)
	owner := ident.New().String()
	alice := ident.New().String()
	bob := ident.New().String()

	out, _, err := runCLI(t, configPath, "task", "create",
		"--uid", owner, "--threshold", "2",
		"--assignee", alice, "--assignee", bob,
	)
	if err != nil {
		t.Fatalf("task create: %v", err)
	}
	taskID := createdTaskID(t, out)

	out, _, err = runCLI(t, configPath, "task", "vote",
		"--uid", owner, "--id", taskID, "--voter", alice, "--decision", "reject")
	if err != nil {
		t.Fatalf("reject vote: %v", err)
	}
	requireContains(t, out, "task is rejected")

	if _, _, err = runCLI(t, configPath, "task", "vote",
		"--uid", owner, "--id", taskID, "--voter", bob, "--decision", "approve"); err == nil {
		t.Fatal("expected vote on settled task to fail")
	}
}

func TestCLINotifyAckDismiss(t *testing.T) {
	configPath := setupCLIConfig(t)
	owner := ident.New().String()
	alice := ident.New().String()
	bob := ident.New().String()

	out, _, err := runCLI(t, configPath, "task", "create",
		"--uid", owner, "--threshold", "1",
		"--assignee", alice, "--assignee", bob,
	)
	if err != nil {
		t.Fatalf("task create: %v", err)
	}
	taskID := createdTaskID(t, out)

	out, _, err = runCLI(t, configPath, "notify", "ack",
		"--uid", alice, "--tid", taskID, "--sender", owner, "--decision", "approve")
	if err != nil {
		t.Fatalf("notify ack: %v", err)
	}
	requireContains(t, out, "task is resolved")

	out, _, err = runCLI(t, configPath, "notify", "dismiss",
		"--uid", bob, "--tid", taskID, "--sender", owner)
	if err != nil {
		t.Fatalf("notify dismiss: %v", err)
	}
	requireContains(t, out, "Notification dismissed")

	if _, _, err = runCLI(t, configPath, "notify", "dismiss",
		"--uid", bob, "--tid", taskID, "--sender", owner); err == nil {
		t.Fatal("expected repeated dismiss to fail")
	}
}

func TestCLIStatus(t *testing.T) {
	configPath := setupCLIConfig(t)
	owner := ident.New().String()

	if _, _, err := runCLI(t, configPath, "task", "create",
		"--uid", owner, "--threshold", "1", "--assignee", ident.New().String()); err != nil {
		t.Fatalf("task create: %v", err)
	}

	out, _, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon: not running")
	requireContains(t, out, "Processing")
}
