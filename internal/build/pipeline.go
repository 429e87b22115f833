package build

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultTimeout is the wall-clock ceiling of one build, waiting for
	// admission included.
	DefaultTimeout = 300 * time.Second

	// DefaultMaxConcurrent is the number of builds that may run at once.
	DefaultMaxConcurrent = 4
)

// Recorder observes builds for metrics.
type Recorder interface {
	BuildStarted()
	BuildFinished(mode Mode, outcome string, d time.Duration)
	BuildRejected(reason string)
	FeedStaged(size int64)
}

// NopRecorder records nothing.
type NopRecorder struct{}

func (NopRecorder) BuildStarted()                             {}
func (NopRecorder) BuildFinished(Mode, string, time.Duration) {}
func (NopRecorder) BuildRejected(string)                      {}
func (NopRecorder) FeedStaged(int64)                          {}

// Record describes a finished build for tracking.
type Record struct {
	BuildID        ID            `json:"build_id"`
	Source         string        `json:"source"`
	Mode           Mode          `json:"mode"`
	Outcome        string        `json:"outcome"` // "completed" or "failed"
	ErrorKind      Kind          `json:"error_kind,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	TimetableCount int           `json:"timetable_count"`
	Agencies       string        `json:"agencies,omitempty"`
	Duration       time.Duration `json:"duration"`
	FinishedAt     time.Time     `json:"finished_at"`
}

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// ErrNotFound is returned when a build record doesn't exist.
var ErrNotFound = errors.New("not found")

// Tracker stores or forwards build records.
type Tracker interface {
	Track(ctx context.Context, r *Record) error
}

// Pipeline runs builds: stage, convert, deliver and clean up.
// A Pipeline is safe for concurrent use and must not be copied after first use.
type Pipeline struct {
	Stager           *Stager
	Converter        Converter
	TemplateDir      string        // directory of named templates
	Timeout          time.Duration // default: DefaultTimeout
	MaxConcurrent    int64         // default: DefaultMaxConcurrent
	ProgressInterval time.Duration // default: DefaultProgressInterval
	Recorder         Recorder      // optional
	Tracker          Tracker       // optional
	Logger           zerolog.Logger

	initOnce sync.Once
	sem      *semaphore.Weighted

	mu      sync.Mutex
	running map[ID]struct{}
}

func (p *Pipeline) init() {
	p.initOnce.Do(func() {
		n := p.MaxConcurrent
		if n <= 0 {
			n = DefaultMaxConcurrent
		}
		p.sem = semaphore.NewWeighted(n)
		p.running = make(map[ID]struct{})
		if p.Recorder == nil {
			p.Recorder = NopRecorder{}
		}
		if p.Stager == nil {
			p.Stager = &Stager{}
		}
	})
}

func (p *Pipeline) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

func (p *Pipeline) progressInterval() time.Duration {
	if p.ProgressInterval <= 0 {
		return DefaultProgressInterval
	}
	return p.ProgressInterval
}

// Run runs the build of req and delivers it with deliverer.
// Progress events go to listener; the terminal event is left to the caller.
// The workspace of the build is removed before Run returns.
// Every error returned is an *Error.
func (p *Pipeline) Run(ctx context.Context, req *Request, listener Listener, deliverer Deliverer) (*Outcome, error) {
	p.init()
	start := time.Now()
	log := p.Logger.With().Str("build_id", req.ID.String()).Str("source", req.Source()).Logger()

	// An unknown template fails before anything is fetched.
	templatePath, err := ResolveTemplate(p.TemplateDir, req.Template)
	if err != nil {
		return nil, AsError(err)
	}

	if !p.claim(req.ID) {
		return nil, newError(KindInvalidInput, "Build ID is already in use", nil)
	}
	defer p.unclaim(req.ID)

	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	if err = p.sem.Acquire(ctx, 1); err != nil {
		p.Recorder.BuildRejected(string(KindBusy))
		e := newError(KindBusy, msgBusy, err)
		log.Warn().Err(e).Msg("build rejected")
		return nil, e
	}
	defer p.sem.Release(1)

	p.Recorder.BuildStarted()
	log.Info().Str("mode", string(deliverer.Mode())).Msg("build started")

	if listener == nil {
		listener = NopListener{}
	}
	throttled := NewThrottledListener(listener, p.progressInterval())
	outcome, err := p.run(ctx, req, templatePath, throttled, deliverer, log)
	throttled.Close()

	d := time.Since(start)
	rec := &Record{
		BuildID:    req.ID,
		Source:     req.Source(),
		Mode:       deliverer.Mode(),
		Duration:   d,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		e := AsError(err)
		if !e.Committed() && errors.Is(ctx.Err(), context.DeadlineExceeded) && e.Kind != KindTimeout {
			e = newError(KindTimeout, msgTimeout, e)
		}
		rec.Outcome, rec.ErrorKind, rec.ErrorMessage = OutcomeFailed, e.Kind, e.Message
		p.Recorder.BuildFinished(deliverer.Mode(), string(e.Kind), d)
		log.Warn().Err(e).Str("kind", string(e.Kind)).Dur("duration", d).Msg("build failed")
		p.track(ctx, rec, log)
		return nil, e
	}

	rec.Outcome, rec.TimetableCount, rec.Agencies = OutcomeCompleted, outcome.TimetableCount, outcome.Agencies
	p.Recorder.BuildFinished(deliverer.Mode(), "success", d)
	log.Info().Int("timetable_count", outcome.TimetableCount).Dur("duration", d).Msg("build finished")
	p.track(ctx, rec, log)
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context, req *Request, templatePath string, listener Listener, deliverer Deliverer, log zerolog.Logger) (*Outcome, error) {
	ws, err := p.Stager.Stage(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Error().Err(err).Msg("failed to remove workspace")
		}
	}()
	p.Recorder.FeedStaged(ws.FeedSize)
	log.Debug().Int64("feed_size", ws.FeedSize).Str("dir", ws.Dir).Msg("feed staged")

	cres, err := p.Converter.Convert(ctx, &ConvertParams{
		ID:           req.ID,
		Workspace:    ws,
		Options:      req.Options,
		TemplatePath: templatePath,
		Listener:     listener,
	})
	if err != nil {
		return nil, err
	}

	return deliverer.Deliver(ctx, &Result{
		ID:          req.ID,
		OutputDir:   cres.OutputDir,
		ArchivePath: cres.ArchivePath,
		Summary:     cres.Summary,
	}, listener)
}

func (p *Pipeline) track(ctx context.Context, rec *Record, log zerolog.Logger) {
	if p.Tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Tracker.Track(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to track build")
	}
}

func (p *Pipeline) claim(id ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.running[id]; ok {
		return false
	}
	p.running[id] = struct{}{}
	return true
}

func (p *Pipeline) unclaim(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, id)
}
