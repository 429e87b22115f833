package build

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConvertParams describes one generator run.
type ConvertParams struct {
	ID        ID
	Workspace *Workspace
	Options   Options
	Listener  Listener

	// TemplatePath is a resolved template directory.
	// Empty means the generator's default template.
	TemplatePath string
}

type ConvertResult struct {
	OutputDir   string
	ArchivePath string
	Summary     Summary
}

// TimetableCount is the number of timetables the generator reported.
func (r *ConvertResult) TimetableCount() int {
	return r.Summary.TimetableCount()
}

// Converter turns a staged feed into a tree of timetables.
type Converter interface {
	Convert(ctx context.Context, params *ConvertParams) (*ConvertResult, error)
}

// ExecConverter runs the gtfs-to-html command line tool.
type ExecConverter struct {
	Command string   // default: "gtfs-to-html"
	Args    []string // passed before --configPath
	Env     []string // added to the process environment
	Logger  zerolog.Logger
}

func (c *ExecConverter) command() string {
	if c.Command == "" {
		return "gtfs-to-html"
	}
	return c.Command
}

func (c *ExecConverter) Convert(ctx context.Context, params *ConvertParams) (*ConvertResult, error) {
	ws := params.Workspace
	listener := params.Listener
	if listener == nil {
		listener = NopListener{}
	}

	configFile := filepath.Join(ws.Dir, "config.json")
	config := generatorConfig(params.ID, ws, params.Options, params.TemplatePath)
	if err := writeJSON(configFile, config); err != nil {
		return nil, fileError(err)
	}

	args := append(append([]string(nil), c.Args...), "--configPath", configFile)
	cmd := exec.CommandContext(ctx, c.command(), args...)
	cmd.Dir = ws.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("build.ExecConverter: %w", err)
	}
	stderr := &tailWriter{max: 20}
	cmd.Stderr = stderr

	c.Logger.Debug().Str("build_id", params.ID.String()).Str("command", c.command()).Msg("starting generator")
	if err = cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, newError(KindConversionFailure, msgUnableToProcess, err)
		}
		return nil, fileError(err)
	}

	// stdout must be drained before Wait
	relayOutput(stdout, func(line string, overwrite bool) {
		if !overwrite {
			c.Logger.Debug().Str("build_id", params.ID.String()).Msg(line)
		}
		listener.OnEvent(Event{Status: line, Overwrite: overwrite})
	})

	if err = cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, AsError(ctxErr)
		}
		msg := stderr.errorLine()
		c.Logger.Warn().Err(err).Str("build_id", params.ID.String()).Str("stderr", stderr.String()).Msg("generator failed")
		return nil, generatorError(msg, err)
	}

	result := &ConvertResult{OutputDir: ws.OutputDir, ArchivePath: ws.ArchivePath()}
	if _, err = os.Stat(result.ArchivePath); err != nil {
		return nil, newError(KindConversionFailure, msgUnableToProcess, fmt.Errorf("no archive: %w", err))
	}
	result.Summary, err = ReadSummary(filepath.Join(ws.OutputDir, "log.txt"))
	if err != nil {
		c.Logger.Warn().Err(err).Str("build_id", params.ID.String()).Msg("no summary")
		result.Summary = Summary{}
	}

	listener.OnEvent(Event{Status: fmt.Sprintf("Finished creating %d timetables", result.TimetableCount())})
	return result, nil
}

// generatorConfig returns the configuration document of the generator.
// Operational keys always override the options.
func generatorConfig(id ID, ws *Workspace, options Options, templatePath string) Options {
	config := MergeOptions(options, Options{
		"verbose":    true,
		"zipOutput":  true,
		"skipImport": false,
		"sqlitePath": ":memory:",
		"outputPath": ws.OutputDir,
		"agencies": []map[string]string{{
			"agencyKey":  id.String(),
			"agency_key": id.String(),
			"path":       ws.FeedPath,
		}},
	})
	delete(config, "templatePath")
	if templatePath != "" {
		config["templatePath"] = templatePath
	}
	return config
}

// ResolveTemplate returns the directory of the named template in dir.
// An empty name resolves to the generator's default template.
func ResolveTemplate(dir, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	invalid := &Error{Kind: KindInvalidInput, Message: fmt.Sprintf("Unknown template %q", name)}
	if dir == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", invalid
	}
	p := filepath.Join(dir, name)
	fi, err := os.Stat(p)
	if err != nil || !fi.IsDir() {
		invalid.Err = err
		return "", invalid
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("build.ResolveTemplate: %w", err)
	}
	return abs, nil
}

func writeJSON(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(name, b, 0o600)
}

var (
	ansiRegexp      = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	eraseLineRegexp = regexp.MustCompile(`^\x1b\[[0-2]?K`)
)

// relayOutput reads the generator's output and calls fn for each non-empty
// line. Lines ended by a carriage return, or starting with an erase-line
// sequence, are progress ticks meant to overwrite the previous tick.
func relayOutput(r io.Reader, fn func(line string, overwrite bool)) {
	br := bufio.NewReader(r)
	var buf bytes.Buffer
	flush := func(overwrite bool) {
		raw := buf.String()
		buf.Reset()
		if eraseLineRegexp.MatchString(raw) {
			overwrite = true
		}
		line := strings.TrimSpace(ansiRegexp.ReplaceAllString(raw, ""))
		if line != "" {
			fn(line, overwrite)
		}
	}
	for {
		b, err := br.ReadByte()
		if err != nil {
			flush(false)
			return
		}
		switch b {
		case '\n':
			flush(false)
		case '\r':
			if next, err := br.Peek(1); err == nil && next[0] == '\n' {
				continue
			}
			flush(true)
		default:
			buf.WriteByte(b)
		}
	}
}

// generatorError classifies the last line the generator wrote to stderr.
func generatorError(msg string, cause error) *Error {
	msg = cleanMessage(ansiRegexp.ReplaceAllString(msg, ""))
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "emfile"), strings.Contains(lower, "enfile"):
		return newError(KindBusy, msgBusy, cause)
	case strings.Contains(lower, "fetcherror"),
		strings.Contains(lower, "enotfound"),
		strings.Contains(lower, "getaddrinfo"),
		strings.Contains(lower, "unable to download"):
		return newError(KindFetchFailure, "Unable to fetch GTFS", errors.Join(errors.New(msg), cause))
	case strings.Contains(lower, "invalid gtfs"):
		return newError(KindInvalidArchive, msgInvalidGTFS, errors.Join(errors.New(msg), cause))
	case strings.Contains(lower, "unzip"), strings.Contains(lower, "zip"), strings.Contains(lower, "archive"):
		return newError(KindInvalidArchive, msgInvalidZip, errors.Join(errors.New(msg), cause))
	case msg == "":
		return newError(KindConversionFailure, msgUnableToProcess, cause)
	default:
		return newError(KindConversionFailure, msg, cause)
	}
}

// tailWriter keeps the last max non-empty lines written to it.
type tailWriter struct {
	max int

	mu      sync.Mutex
	lines   []string
	partial bytes.Buffer
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial.Write(p)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// put the unterminated rest back
			rest := line
			w.partial.Reset()
			w.partial.WriteString(rest)
			break
		}
		w.add(line)
	}
	return len(p), nil
}

func (w *tailWriter) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	w.lines = append(w.lines, line)
	if len(w.lines) > w.max {
		w.lines = w.lines[len(w.lines)-w.max:]
	}
}

var errorLineRegexp = regexp.MustCompile(`^[A-Za-z]*Error\b`)

// errorLine returns the last line that names an error, or else the last
// line that isn't a stack frame.
func (w *tailWriter) errorLine() string {
	w.mu.Lock()
	lines := append([]string(nil), w.lines...)
	if s := strings.TrimSpace(w.partial.String()); s != "" {
		lines = append(lines, s)
	}
	w.mu.Unlock()

	fallback := ""
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if strings.HasPrefix(line, "at ") {
			continue
		}
		if errorLineRegexp.MatchString(line) {
			return line
		}
		if fallback == "" {
			fallback = line
		}
	}
	return fallback
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := strings.Join(w.lines, "\n")
	if rest := strings.TrimSpace(w.partial.String()); rest != "" {
		s += "\n" + rest
	}
	return s
}
