package motion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"camtrap/internal/feed"
	"camtrap/internal/logging"
	"camtrap/internal/region"
	"camtrap/internal/services"
	"camtrap/internal/trigger"
)

// Status texts published on the status board.
const (
	StatusUndetected = "Undetected"
	StatusMovement   = "Movement Detected"
	StatusTriggered  = "triggered!!!"
	StatusRetrigger  = "re-triggered!!!"
	StatusRebasing   = "rebasing reference frame"
)

// pollInterval is how long the loop sleeps while waiting for the next frame slot.
const pollInterval = 3 * time.Millisecond

// ErrInvalidCoordinates is returned by Recenter for a center outside the
// frame, or before the first frame has fixed the frame size.
var ErrInvalidCoordinates = errors.New("invalid detection coordinates")

// Config tunes a Loop.
type Config struct {
	TargetFPS      int
	SquareSide     int
	RebaseInterval time.Duration
	// CenterX and CenterY override the persisted region center when set.
	CenterX *int
	CenterY *int
}

// Deps are the collaborators of a Loop. Now and Sleep default to the wall clock.
type Deps struct {
	Source     Source
	Vision     Vision
	Compositor Compositor
	Capturer   Capturer
	Machine    *trigger.Machine
	Regions    *region.Store
	Logger     *slog.Logger
	Now        func() time.Time
	Sleep      func(time.Duration)
}

// Snapshot describes the loop for status reporting.
type Snapshot struct {
	Status    feed.Status      `json:"status"`
	Trigger   trigger.Snapshot `json:"trigger"`
	Region    region.Region    `json:"region"`
	Bounds    image.Rectangle  `json:"bounds"`
	FrameSize image.Point      `json:"frame_size"`
	FPS       int              `json:"fps"`
	Running   bool             `json:"running"`
}

// Loop is the frame analysis context. Run must be called at most once.
type Loop struct {
	cfg        Config
	source     Source
	vision     Vision
	compositor Compositor
	capturer   Capturer
	machine    *trigger.Machine
	regions    *region.Store
	logger     *slog.Logger
	now        func() time.Time
	sleep      func(time.Duration)
	preview    *feed.Slot[[]byte]
	status     *feed.StatusBoard

	// reference is only touched by the Run goroutine.
	reference Frame

	mu         sync.Mutex
	region     region.Region
	regionSet  bool
	bounds     image.Rectangle
	frameSize  image.Point
	generation uint64
	rebase     *time.Timer
	stopped    bool
	running    bool
	fps        int
}

// NewLoop wires a loop. The region is resolved when the first frame arrives.
func NewLoop(cfg Config, deps Deps) *Loop {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 32
	}
	return &Loop{
		cfg:        cfg,
		source:     deps.Source,
		vision:     deps.Vision,
		compositor: deps.Compositor,
		capturer:   deps.Capturer,
		machine:    deps.Machine,
		regions:    deps.Regions,
		logger:     logging.NewComponentLogger(deps.Logger, "motion"),
		now:        now,
		sleep:      sleep,
		preview:    feed.NewSlot[[]byte](),
		status:     feed.NewStatusBoard(StatusUndetected),
	}
}

// Preview is the latest composite JPEG.
func (l *Loop) Preview() *feed.Slot[[]byte] { return l.preview }

// Status is the edge-triggered detection status.
func (l *Loop) Status() *feed.StatusBoard { return l.status }

// Run analyzes frames until ctx is done or the source ends. An exhausted
// source is not an error.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer l.finish()

	interval := time.Second / time.Duration(l.cfg.TargetFPS)
	var last time.Time
	fpsStart := l.now()
	frames := 0

	for {
		if ctx.Err() != nil {
			return nil
		}
		now := l.now()
		if !last.IsZero() && now.Sub(last) < interval {
			l.sleep(pollInterval)
			continue
		}
		last = now

		frame, err := l.source.Next(ctx)
		if err != nil {
			if errors.Is(err, services.ErrStreamEnded) {
				l.logger.Info("video source ended", logging.String(logging.FieldEventType, "stream_ended"))
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		frames++
		if elapsed := l.now().Sub(fpsStart); elapsed > time.Second {
			l.mu.Lock()
			l.fps = frames
			l.mu.Unlock()
			frames = 0
			fpsStart = l.now()
		}

		err = l.process(frame, now)
		frame.Close()
		if err != nil {
			return err
		}
	}
}

func (l *Loop) finish() {
	l.mu.Lock()
	l.running = false
	l.stopped = true
	if l.rebase != nil {
		l.rebase.Stop()
	}
	l.mu.Unlock()
	if l.reference != nil {
		l.reference.Close()
		l.reference = nil
	}
}

// process analyzes one frame. The frame is closed by the caller.
func (l *Loop) process(frame Frame, at time.Time) error {
	l.mu.Lock()
	if l.frameSize != frame.Size() {
		if err := l.applyFrameSizeLocked(frame.Size()); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	rect := l.bounds
	generation := l.generation
	state := l.machine.State()
	fps := l.fps
	l.mu.Unlock()

	crop, err := l.vision.Crop(frame, rect)
	if err != nil {
		return fmt.Errorf("crop frame: %w", err)
	}
	defer crop.Close()
	gray, err := l.vision.ToGray(crop)
	if err != nil {
		return fmt.Errorf("grayscale: %w", err)
	}
	blurred, err := l.vision.Blur(gray)
	gray.Close()
	if err != nil {
		return fmt.Errorf("blur: %w", err)
	}

	if state == trigger.Idle || l.reference == nil {
		l.takeReference(blurred, generation, at)
		return nil
	}
	defer blurred.Close()

	delta, err := l.vision.AbsDiff(l.reference, blurred)
	if err != nil {
		return fmt.Errorf("frame delta: %w", err)
	}
	defer delta.Close()
	thresh, err := l.vision.Threshold(delta)
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	defer thresh.Close()
	contours, err := l.vision.FindContours(thresh)
	if err != nil {
		return fmt.Errorf("find contours: %w", err)
	}

	minArea := l.machine.MinArea()
	moving := lo.Filter(contours, func(c Contour, _ int) bool { return c.Area >= minArea })

	text := StatusUndetected
	if len(moving) > 0 {
		text = StatusMovement
	}

	l.mu.Lock()
	if generation != l.generation {
		// region moved or rebase requested mid-frame; the sample is stale
		l.mu.Unlock()
		return nil
	}
	outcome := l.machine.Observe(trigger.Sample{At: at, Count: len(moving)})
	l.mu.Unlock()

	switch outcome {
	case trigger.Fired:
		text = StatusTriggered
	case trigger.Retriggered:
		text = StatusRetrigger
	}
	if outcome.Capture() {
		l.requestCapture(outcome, len(moving))
	}

	l.publishPreview(Composite{
		Original:  frame,
		Crop:      crop,
		Threshold: thresh,
		Delta:     delta,
		Region:    rect,
		Boxes:     lo.Map(moving, func(c Contour, _ int) image.Rectangle { return c.Bounds }),
		FPS:       fps,
	})
	l.setStatus(text, at)
	return nil
}

// takeReference keeps blurred as the new reference unless the region changed
// while it was being computed.
func (l *Loop) takeReference(blurred Frame, generation uint64, at time.Time) {
	l.mu.Lock()
	if generation != l.generation {
		l.mu.Unlock()
		blurred.Close()
		return
	}
	if l.reference != nil {
		l.reference.Close()
	}
	l.reference = blurred
	l.machine.Arm()
	l.mu.Unlock()
	l.setStatus(StatusRebasing, at)
}

func (l *Loop) requestCapture(outcome trigger.Outcome, contours int) {
	kind := "trigger"
	if outcome == trigger.Retriggered {
		kind = "retrigger"
	}
	l.logger.Info("motion trigger fired",
		logging.String(logging.FieldEventType, "motion_"+kind),
		logging.Int("contours", contours),
	)
	if l.capturer == nil {
		return
	}
	if err := l.capturer.Capture(); err != nil {
		logging.WarnWithContext(l.logger, "capture request rejected", "capture_rejected",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "device worker is shutting down"),
			logging.String(logging.FieldImpact, "no photo taken for this trigger"),
		)
	}
}

func (l *Loop) publishPreview(c Composite) {
	if l.compositor == nil {
		return
	}
	data, err := l.compositor.Compose(c)
	if err != nil {
		l.logger.Debug("preview compose failed", logging.Error(err))
		return
	}
	l.preview.Publish(data)
}

func (l *Loop) setStatus(text string, at time.Time) {
	if l.status.Set(text, at) {
		l.logger.Debug("status changed", logging.String("status", text))
	}
}

// applyFrameSizeLocked resolves the region for a newly seen frame size.
func (l *Loop) applyFrameSizeLocked(size image.Point) error {
	first := l.frameSize == (image.Point{})
	l.frameSize = size
	if !l.regionSet {
		r, err := l.initialRegion(size)
		if err != nil {
			return err
		}
		l.region = r
		l.regionSet = true
		l.saveRegionLocked()
	} else if err := l.region.Validate(size); err != nil {
		fallback := region.Centered(size, l.region.Side)
		logging.WarnWithContext(l.logger, "detection region outside new frame size", "region_reset",
			logging.Error(err),
			logging.String("center", fallback.String()),
			logging.String(logging.FieldImpact, "detection square moved to the frame center"),
		)
		l.region = fallback
		l.saveRegionLocked()
	}
	l.bounds = l.region.Bounds(size)
	l.machine.Resize(l.region.Side)
	l.generation++
	l.machine.Reset()
	if first {
		l.startRebaseTimerLocked()
		l.logger.Info("detection region ready",
			logging.String("center", l.region.String()),
			logging.Int("side", l.region.Side),
			logging.String("frame", fmt.Sprintf("%dx%d", size.X, size.Y)),
		)
	}
	return nil
}

func (l *Loop) initialRegion(size image.Point) (region.Region, error) {
	var file region.File
	if l.regions != nil {
		loaded, _, err := l.regions.Load()
		if err != nil {
			return region.Region{}, err
		}
		file = loaded
	}
	if l.cfg.CenterX != nil {
		file.Coordinates.X = l.cfg.CenterX
	}
	if l.cfg.CenterY != nil {
		file.Coordinates.Y = l.cfg.CenterY
	}
	r := file.Resolve(size, l.cfg.SquareSide)
	if err := r.Validate(size); err != nil {
		return region.Region{}, services.Wrap(services.ErrConfiguration, "motion", "region", "persisted detection region", err)
	}
	return r, nil
}

// Recenter moves the detection square, persists it and forces the trigger
// back to Idle so a new reference frame is taken. Recentering on the current
// coordinates still resets.
func (l *Loop) Recenter(x, y int) (region.Region, error) {
	l.mu.Lock()
	if l.frameSize == (image.Point{}) {
		l.mu.Unlock()
		return region.Region{}, fmt.Errorf("%w: frame size not known yet", ErrInvalidCoordinates)
	}
	r := region.Region{CenterX: x, CenterY: y, Side: l.cfg.SquareSide}
	if l.regionSet {
		r.Side = l.region.Side
	}
	if err := r.Validate(l.frameSize); err != nil {
		l.mu.Unlock()
		return region.Region{}, fmt.Errorf("%w: %w", ErrInvalidCoordinates, err)
	}
	l.region = r
	l.regionSet = true
	l.bounds = r.Bounds(l.frameSize)
	l.saveRegionLocked()
	l.machine.Resize(r.Side)
	l.generation++
	l.machine.Reset()
	l.resetRebaseTimerLocked()
	l.mu.Unlock()

	l.setStatus(fmt.Sprintf("detection square was set to (%d,%d)", x, y), l.now())
	l.logger.Info("detection region recentered",
		logging.String(logging.FieldEventType, "region_recentered"),
		logging.Int("x", x),
		logging.Int("y", y),
	)
	return r, nil
}

// Rebase forces a new reference frame. The rebase timer calls it periodically.
func (l *Loop) Rebase() {
	l.mu.Lock()
	l.generation++
	l.machine.Reset()
	l.mu.Unlock()
	l.logger.Debug("reference frame rebase scheduled")
}

func (l *Loop) onRebaseTimer() {
	l.Rebase()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetRebaseTimerLocked()
}

func (l *Loop) startRebaseTimerLocked() {
	if l.cfg.RebaseInterval <= 0 || l.rebase != nil || l.stopped {
		return
	}
	l.rebase = time.AfterFunc(l.cfg.RebaseInterval, l.onRebaseTimer)
}

func (l *Loop) resetRebaseTimerLocked() {
	if l.rebase == nil || l.stopped {
		return
	}
	l.rebase.Reset(l.cfg.RebaseInterval)
}

func (l *Loop) saveRegionLocked() {
	if l.regions == nil {
		return
	}
	if err := l.regions.Save(l.region); err != nil {
		logging.WarnWithContext(l.logger, "detection region not persisted", "region_save_failed",
			logging.Error(err),
			logging.String("path", l.regions.Path()),
			logging.String(logging.FieldErrorHint, "check permissions on the region file directory"),
			logging.String(logging.FieldImpact, "region resets to the previous value on restart"),
		)
	}
}

// Region returns the active detection region.
func (l *Loop) Region() region.Region {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.region
}

// Snapshot returns the current loop state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Status:    l.status.Current(),
		Trigger:   l.machine.Snapshot(),
		Region:    l.region,
		Bounds:    l.bounds,
		FrameSize: l.frameSize,
		FPS:       l.fps,
		Running:   l.running,
	}
}
