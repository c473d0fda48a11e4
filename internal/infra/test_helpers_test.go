package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	byName     map[string][]int
	exePaths   map[int]string
	findErr    error
	killErr    error
	killedPIDs []int
	findCalls  int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		byName:   make(map[string][]int),
		exePaths: make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.byName[pattern], nil
}

func (m *mockProcessManager) Kill(pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) ExecutablePath(pid int) (string, error) {
	p, ok := m.exePaths[pid]
	if !ok {
		return "", fmt.Errorf("process %d not found", pid)
	}
	return p, nil
}

func (m *mockProcessManager) addProcess(name string, pid int, exe string) {
	m.byName[name] = append(m.byName[name], pid)
	m.exePaths[pid] = exe
}

// recordingRunner captures commands instead of executing them
type recordingRunner struct {
	calls []string
	err   error
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) error {
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	return r.err
}

// Ensure mockProcessManager implements domain.ProcessManager
var _ domain.ProcessManager = (*mockProcessManager)(nil)
