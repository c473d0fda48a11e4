// Package infra implements infrastructure concerns (storage, processes, feeds).
package infra

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// ProcessManager implements domain.ProcessManager using gopsutil.
type ProcessManager struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{}
}

// FindByName returns PIDs whose process name or executable base name equals
// pattern, case-insensitively. Package identifiers such as "com.example.app"
// are matched against the last dotted segment too.
func (pm *ProcessManager) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	candidates := nameCandidates(pattern)

	var found []int
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if matchesAny(name, candidates) {
			found = append(found, int(p.Pid))
			continue
		}
		if exe, err := p.Exe(); err == nil && matchesAny(filepath.Base(exe), candidates) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// Kill terminates a process by PID.
func (pm *ProcessManager) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// ExecutablePath returns the executable path of a running process.
func (pm *ProcessManager) ExecutablePath(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Exe()
}

func nameCandidates(pkg string) []string {
	out := []string{pkg}
	if i := strings.LastIndex(pkg, "."); i >= 0 && i < len(pkg)-1 {
		out = append(out, pkg[i+1:])
	}
	return out
}

func matchesAny(name string, candidates []string) bool {
	for _, c := range candidates {
		if strings.EqualFold(name, c) {
			return true
		}
	}
	return false
}

// Ensure ProcessManager implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManager)(nil)
