package proctree

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// Proc is the slice of process information the detector needs.
type Proc struct {
	PID     int
	PPID    int
	Comm    string
	State   string
	Cmdline []string
}

// Source lists the processes on the system.
type Source interface {
	Processes() ([]Proc, error)
}

// ProcFS reads processes from a procfs mount.
type ProcFS struct {
	fs procfs.FS
}

// NewProcFS opens the procfs mounted at mountPoint. An empty mountPoint uses
// the default mount.
func NewProcFS(mountPoint string) (*ProcFS, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", mountPoint, err)
	}
	return &ProcFS{fs: fs}, nil
}

// Processes returns every process that could be read. Processes that exit
// while being listed are skipped.
func (p *ProcFS) Processes() ([]Proc, error) {
	all, err := p.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	procs := make([]Proc, 0, len(all))
	for _, proc := range all {
		stat, err := proc.Stat()
		if err != nil {
			continue
		}
		cmdline, _ := proc.CmdLine()
		procs = append(procs, Proc{
			PID:     stat.PID,
			PPID:    stat.PPID,
			Comm:    stat.Comm,
			State:   stat.State,
			Cmdline: cmdline,
		})
	}
	return procs, nil
}
