// Package judge builds sandboxed execution requests in the go-judge wire format
// and runs them against a judge backend.
package judge

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"
)

// DefaultPath is the PATH exported to every sandboxed command.
const DefaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// DefaultCommand compiles and runs a submission through its own scripts.
const DefaultCommand = "sh compile.sh && sh run.sh"

// Runner executes a judge request and returns the result of its first command.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Limits bounds the resources of a single sandboxed run.
type Limits struct {
	CPU         time.Duration
	MemoryBytes int64
	Procs       int
	OutputMax   int64
	Command     string
}

// DefaultLimits returns 10s of CPU, 256MB of memory, 50 processes and 10KB per
// captured output stream.
func DefaultLimits() Limits {
	return Limits{
		CPU:         10 * time.Second,
		MemoryBytes: 256 << 20,
		Procs:       50,
		OutputMax:   10240,
		Command:     DefaultCommand,
	}
}

func (l Limits) withDefaults() Limits {
	defaults := DefaultLimits()
	if l.CPU <= 0 {
		l.CPU = defaults.CPU
	}
	if l.MemoryBytes <= 0 {
		l.MemoryBytes = defaults.MemoryBytes
	}
	if l.Procs <= 0 {
		l.Procs = defaults.Procs
	}
	if l.OutputMax <= 0 {
		l.OutputMax = defaults.OutputMax
	}
	if strings.TrimSpace(l.Command) == "" {
		l.Command = defaults.Command
	}
	return l
}

// File is a submitted source file addressed by its path relative to the
// submission root.
type File struct {
	Path    string
	Content []byte
}

// Request is the body POSTed to the judge.
type Request struct {
	Cmd []Cmd `json:"cmd"`
}

// Cmd describes one sandboxed process.
type Cmd struct {
	Args        []string              `json:"args"`
	Env         []string              `json:"env"`
	Files       []CmdFile             `json:"files"`
	CPULimit    int64                 `json:"cpuLimit"`
	MemoryLimit int64                 `json:"memoryLimit"`
	ProcLimit   int                   `json:"procLimit"`
	CopyIn      map[string]CopyInFile `json:"copyIn"`
	CopyOut     []string              `json:"copyOut"`
}

// CmdFile is a file descriptor slot: inline content for stdin or a named
// collector for stdout and stderr.
type CmdFile struct {
	Content *string `json:"content,omitempty"`
	Name    string  `json:"name,omitempty"`
	Max     int64   `json:"max,omitempty"`
}

// CopyInFile is an entry of the virtual file tree.
type CopyInFile struct {
	Content string `json:"content"`
}

// Result is one element of the judge response array.
type Result struct {
	Status     string            `json:"status"`
	ExitStatus int               `json:"exitStatus"`
	Error      string            `json:"error,omitempty"`
	Time       int64             `json:"time"`
	Memory     int64             `json:"memory"`
	Files      map[string]string `json:"files"`
}

// Stdout returns the captured standard output.
func (r Result) Stdout() string { return r.Files["stdout"] }

// Stderr returns the captured standard error.
func (r Result) Stderr() string { return r.Files["stderr"] }

// NewRequest builds a single command request that runs the configured command
// through a shell inside a tree holding files.
func NewRequest(files []File, limits Limits) Request {
	limits = limits.withDefaults()
	stdin := ""

	return Request{Cmd: []Cmd{{
		Args: []string{"/bin/sh", "-c", limits.Command},
		Env:  []string{DefaultPath},
		Files: []CmdFile{
			{Content: &stdin},
			{Name: "stdout", Max: limits.OutputMax},
			{Name: "stderr", Max: limits.OutputMax},
		},
		CPULimit:    limits.CPU.Nanoseconds(),
		MemoryLimit: limits.MemoryBytes,
		ProcLimit:   limits.Procs,
		CopyIn:      BuildCopyIn(files),
		CopyOut:     []string{"stdout", "stderr"},
	}}}
}

// BuildCopyIn flattens files into the judge's path to content map. Every
// intermediate directory gets its own empty entry keyed with a trailing slash,
// created once no matter how many files share it.
func BuildCopyIn(files []File) map[string]CopyInFile {
	copyIn := make(map[string]CopyInFile, len(files))
	created := make(map[string]struct{})

	for _, file := range files {
		name := strings.TrimPrefix(path.Clean("/"+file.Path), "/")
		if name == "" {
			continue
		}

		segments := strings.Split(name, "/")
		for i := 1; i < len(segments); i++ {
			dir := strings.Join(segments[:i], "/") + "/"
			if _, ok := created[dir]; ok {
				continue
			}
			created[dir] = struct{}{}
			copyIn[dir] = CopyInFile{}
		}

		copyIn[name] = CopyInFile{Content: string(file.Content)}
	}

	return copyIn
}

// Directories returns the directory entries of a copyIn map in sorted order.
func Directories(copyIn map[string]CopyInFile) []string {
	dirs := make([]string, 0)
	for key := range copyIn {
		if strings.HasSuffix(key, "/") {
			dirs = append(dirs, key)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// OutputLimit returns the capture limit requested for the named stream.
func (c Cmd) OutputLimit(name string) int64 {
	for _, f := range c.Files {
		if f.Name == name {
			return f.Max
		}
	}
	return 0
}
