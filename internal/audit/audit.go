// Package audit records every safety-policy decision and dispatched action
// outcome to an append-only JSONL ledger, so an operator can reconstruct
// "why was this blocked" without re-deriving it from the rest of the logs.
//
// Unlike some of its sibling packages, Auditor is an explicit instance, not
// ambient package state: each of the core and the runner opens its own log
// file under its own data directory.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nanoclaw/ops/internal/shared"
)

type entry struct {
	Timestamp     string `json:"timestamp"`
	Decision      string `json:"decision"` // "allow", "deny", "blocked"
	Capability    string `json:"capability"`
	Reason        string `json:"reason"`
	PolicyVersion string `json:"policy_version,omitempty"`
	Subject       string `json:"subject,omitempty"`
}

// Auditor appends decision records to logs/audit.jsonl under a data directory.
type Auditor struct {
	mu        sync.Mutex
	file      *os.File
	denyCount atomic.Int64
}

// Open creates (or appends to) the audit log under dataDir/logs/audit.jsonl.
func Open(dataDir string) (*Auditor, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Auditor{file: f}, nil
}

func (a *Auditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// DenyCount returns the total deny+blocked decisions recorded since Open.
func (a *Auditor) DenyCount() int64 {
	return a.denyCount.Load()
}

// Record appends one decision entry. Reason and subject are redacted before
// persistence since they frequently echo the offending command or URL.
func (a *Auditor) Record(decision, capability, reason, policyVersion, subject string) {
	if decision == "deny" || decision == "blocked" {
		a.denyCount.Add(1)
	}

	reason = shared.Redact(reason)
	subject = shared.Redact(subject)

	ev := entry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Decision:      decision,
		Capability:    capability,
		Reason:        reason,
		PolicyVersion: policyVersion,
		Subject:       subject,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_, _ = a.file.Write(append(b, '\n'))
	}
}
