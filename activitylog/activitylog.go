// Package activitylog implements respire's JSON-lines build event log:
// a stream of {"id", "type", "time_us", ...} objects describing when
// each node started scanning its dependencies, started running its
// command, and finished, suitable for a separate log-viewer tool to
// render a build's timeline. It is distinct from log/, which is a
// generic leveled logger for respire's own internal diagnostics.
package activitylog

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/respire/graph"
)

// Level controls how much of a build's activity is recorded.
type Level int

const (
	// None disables the log entirely.
	None Level = iota
	// ProcessExecutionOnly records command-execution events and
	// processing-complete events that carry an error (together with
	// the node-creation event they imply), skipping less important
	// events such as the start of dependency scanning.
	ProcessExecutionOnly
	// All records every event, including node-creation and
	// dependency-scan events.
	All
)

// Log is the shared, concurrency-safe sink every node's per-node log
// (FileProcessLog, RegistryNodeLog) writes its events to. One Log is
// shared by an entire build.
type Log struct {
	level Level
	out   io.Writer

	mu        sync.Mutex
	nextID    int
	startTime time.Time
}

// New returns a Log at the given level, writing JSON-lines events to
// out. out may be nil, in which case every signal is a no-op
// regardless of level, matching the original's null-ostream behavior.
func New(out io.Writer, level Level) *Log {
	return &Log{level: level, out: out, startTime: time.Now()}
}

func (l *Log) enabled() bool {
	return l != nil && l.level != None && l.out != nil
}

func (l *Log) createNodeID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	return id
}

func (l *Log) write(s string) {
	if l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.out, s)
}

func (l *Log) elapsedMicros() int64 {
	return time.Since(l.startTime).Microseconds()
}

// escapeLogString escapes '"', '\n', '\r', and '\\': a wider set than
// jsonpath.Escape, since log strings (error messages, command output)
// can contain newlines that hand-authored registry path strings never
// do.
func escapeLogString(s string) string {
	if !strings.ContainsAny(s, "\"\n\r\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func outputKey(b *strings.Builder, key string) {
	b.WriteString(`  "`)
	b.WriteString(key)
	b.WriteString(`": `)
}

// outputString writes a key whose value is already escaped (a
// registry path view's raw bytes, for instance).
func outputString(b *strings.Builder, key, alreadyEscaped string) {
	outputKey(b, key)
	b.WriteByte('"')
	b.WriteString(alreadyEscaped)
	b.WriteString(`", `)
}

// outputRawString writes a key whose value is a raw (unescaped) log
// string, such as an error message.
func outputRawString(b *strings.Builder, key, raw string) {
	outputString(b, key, escapeLogString(raw))
}

func outputPathList(b *strings.Builder, key string, paths []string) {
	outputKey(b, key)
	b.WriteByte('[')
	for i, p := range paths {
		b.WriteString(`    "`)
		b.WriteString(escapeLogString(p))
		b.WriteByte('"')
		if i+1 < len(paths) {
			b.WriteString(", ")
		}
	}
	b.WriteString("  ], ")
}

func maybeOutputPath(b *strings.Builder, key string, path *string) {
	if path != nil {
		outputString(b, key, escapeLogString(*path))
	}
}

// outputNodeFooter closes a node event object with a dummy trailing
// key so no event ever ends in a comma before its closing brace.
func outputNodeFooter(b *strings.Builder) {
	b.WriteString(`"d":"0"},` + "\n")
}

func (l *Log) outputNodeHeader(b *strings.Builder, nodeID int, eventType string) {
	b.WriteByte('{')
	b.WriteString(`"id": "`)
	b.WriteString(strconv.Itoa(nodeID))
	b.WriteString(`", `)
	b.WriteString(`"type": "`)
	b.WriteString(eventType)
	b.WriteString(`", `)
	b.WriteString(`"time_us": "`)
	b.WriteString(strconv.FormatInt(l.elapsedMicros(), 10))
	b.WriteString(`", `)
}

// SignalRespireError logs a failure in respire's own core execution
// flow (e.g. a root registry file that could not be parsed at all),
// not attributable to any particular node.
func (l *Log) SignalRespireError(err error) {
	if !l.enabled() {
		return
	}
	var b strings.Builder
	l.outputNodeHeader(&b, -1, "SignalRespireError")
	outputRawString(&b, "error", err.Error())
	outputNodeFooter(&b)
	l.write(b.String())
}

// FileProcessLog is the per-node activitylog.Log view a
// SystemCommandNode logs its lifecycle through, implementing
// graph.ProcessLog.
type FileProcessLog struct {
	log    *Log
	params graph.SystemCommandParams

	mu             sync.Mutex
	nodeID         int
	created        bool
	runningCommand bool
}

// NewFileProcessLog returns the FileProcessLog for one SystemCommandNode.
func NewFileProcessLog(log *Log, params graph.SystemCommandParams) *FileProcessLog {
	l := &FileProcessLog{log: log, params: params, nodeID: -1}
	if log.enabled() && log.level == All {
		l.ensureCreateSignaled()
	}
	return l
}

func (l *FileProcessLog) ensureCreateSignaled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created {
		return
	}
	l.created = true
	l.nodeID = l.log.createNodeID()

	var b strings.Builder
	l.log.outputNodeHeader(&b, l.nodeID, "CreateSystemCommandNode")
	outputRawString(&b, "command", l.params.Command)
	outputPathList(&b, "inputs", l.params.Inputs)
	outputPathList(&b, "outputs", l.params.Outputs)
	outputPathList(&b, "soft_outs", l.params.SoftOutputs)
	maybeOutputPath(&b, "deps", l.params.DepsFile)
	maybeOutputPath(&b, "stdout", l.params.StdoutFile)
	maybeOutputPath(&b, "stderr", l.params.StderrFile)
	maybeOutputPath(&b, "stdin", l.params.StdinFile)
	outputNodeFooter(&b)
	l.log.write(b.String())
}

func (l *FileProcessLog) id() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nodeID
}

func (l *FileProcessLog) SignalStartDependencyScan(dryRun bool) {
	if !l.log.enabled() || l.log.level != All {
		return
	}
	var b strings.Builder
	l.log.outputNodeHeader(&b, l.id(), "ScanningDependencies")
	if dryRun {
		outputString(&b, "dry_run", "true")
	}
	outputNodeFooter(&b)
	l.log.write(b.String())
}

func (l *FileProcessLog) SignalStartRunningCommand(dryRun bool) {
	if !l.log.enabled() {
		return
	}
	l.ensureCreateSignaled()
	l.mu.Lock()
	l.runningCommand = true
	l.mu.Unlock()

	var b strings.Builder
	l.log.outputNodeHeader(&b, l.id(), "ExecutingCommand")
	if dryRun {
		// Flagging dry runs, and always performing one before a real
		// run, lets a log viewer learn how many nodes will need
		// building before any of them actually run.
		outputString(&b, "dry_run", "true")
	}
	outputNodeFooter(&b)
	l.log.write(b.String())
}

func (l *FileProcessLog) SignalProcessingComplete(err error, dryRun bool) {
	l.mu.Lock()
	running := l.runningCommand
	l.mu.Unlock()
	if !l.log.enabled() {
		return
	}
	if !running && err == nil && l.log.level != All {
		return
	}
	l.ensureCreateSignaled()

	var b strings.Builder
	l.log.outputNodeHeader(&b, l.id(), "ProcessingComplete")
	if dryRun {
		outputString(&b, "dry_run", "true")
	}
	if err != nil {
		outputRawString(&b, "error", err.Error())
	}
	outputNodeFooter(&b)
	l.log.write(b.String())
}

// RegistryNodeLog is the per-node activitylog.Log view a RegistryNode
// logs its lifecycle through, implementing graph.RegistryLog.
type RegistryNodeLog struct {
	log  *Log
	path string

	mu      sync.Mutex
	nodeID  int
	created bool
}

// NewRegistryNodeLog returns the RegistryNodeLog for the registry file
// at path.
func NewRegistryNodeLog(log *Log, path string) *RegistryNodeLog {
	l := &RegistryNodeLog{log: log, path: path, nodeID: -1}
	if log.enabled() && log.level == All {
		l.ensureCreateSignaled()
	}
	return l
}

func (l *RegistryNodeLog) ensureCreateSignaled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created {
		return
	}
	l.created = true
	l.nodeID = l.log.createNodeID()

	var b strings.Builder
	l.log.outputNodeHeader(&b, l.nodeID, "CreateRegistryNode")
	outputRawString(&b, "path", l.path)
	outputNodeFooter(&b)
	l.log.write(b.String())
}

func (l *RegistryNodeLog) id() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nodeID
}

func (l *RegistryNodeLog) SignalStartDependencyScan() {
	if !l.log.enabled() || l.log.level != All {
		return
	}
	var b strings.Builder
	l.log.outputNodeHeader(&b, l.id(), "ScanningDependencies")
	outputNodeFooter(&b)
	l.log.write(b.String())
}

func (l *RegistryNodeLog) SignalStartParsingRegistryFile() {
	if !l.log.enabled() || l.log.level != All {
		return
	}
	var b strings.Builder
	l.log.outputNodeHeader(&b, l.id(), "ParsingStarting")
	outputNodeFooter(&b)
	l.log.write(b.String())
}

func (l *RegistryNodeLog) SignalProcessingComplete(err error) {
	if !l.log.enabled() {
		return
	}
	if err == nil && l.log.level != All {
		return
	}
	l.ensureCreateSignaled()

	var b strings.Builder
	l.log.outputNodeHeader(&b, l.id(), "ProcessingComplete")
	if err != nil {
		outputRawString(&b, "error", err.Error())
	}
	outputNodeFooter(&b)
	l.log.write(b.String())
}

// NewProcessLog builds a graph.Config.NewProcessLog closure bound to
// log, suitable for passing straight through to graph.Config. Returns
// nil if log itself is nil, so a build run with no activity log asks
// every node to skip logging entirely rather than log to a disabled
// sink.
func NewProcessLog(log *Log) func(graph.SystemCommandParams) graph.ProcessLog {
	if log == nil {
		return nil
	}
	return func(params graph.SystemCommandParams) graph.ProcessLog {
		return NewFileProcessLog(log, params)
	}
}

// NewRegistryLog builds a graph.Config.NewRegistryLog closure bound to
// log, mirroring NewProcessLog.
func NewRegistryLog(log *Log) func(string) graph.RegistryLog {
	if log == nil {
		return nil
	}
	return func(path string) graph.RegistryLog {
		return NewRegistryNodeLog(log, path)
	}
}

// ParseLevel parses a level name (case-insensitively), e.g. "all".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return None, nil
	case "process", "process_execution_only", "process-execution-only":
		return ProcessExecutionOnly, nil
	case "all":
		return All, nil
	default:
		return None, fmt.Errorf("invalid activity log level %q", s)
	}
}
