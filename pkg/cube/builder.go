package cube

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/weaviate/sroar"

	"github.com/lh-astro/fitscube/pkg/buildlog"
	"github.com/lh-astro/fitscube/pkg/fits"
)

// DefaultWorkers is the plane-writer pool size when the configuration
// does not choose one. Workers block on I/O, not CPU, so this is a
// disk-saturation knob rather than a core count.
const DefaultWorkers = 4

// PlaneFailure records one plane that could not be written. Failures
// never abort the build; they are accumulated and surfaced at the end.
type PlaneFailure struct {
	Coord PlaneCoordinate
	Path  string
	Err   error
}

// Report summarizes a finished build.
type Report struct {
	Layout    Layout
	Written   *sroar.Bitmap // ordinals of successfully written planes
	Succeeded int
	Failures  []PlaneFailure
	Noise     []ChannelNoise // per channel, when screening was enabled
	Flagged   []int          // channels blotted out by noise screening
	Elapsed   time.Duration
}

// Builder sequences a whole cube build: footprint reservation, a
// bounded pool of plane writers over the ordered plane list, reference
// metadata capture from the designated first plane, and the final
// header rewrite. The cube file handle is owned here and lent to the
// writers for the duration of each operation.
type Builder struct {
	cfg    *Config
	plan   *buildPlan
	layout Layout

	file *os.File

	mu        sync.Mutex
	written   *sroar.Bitmap
	succeeded int
	failures  []PlaneFailure
	noise     []ChannelNoise

	// Reference metadata is a single-assignment cell: produced once by
	// whichever worker handles the designated reference plane,
	// consumed once by Finalize after all workers have stopped.
	refOnce sync.Once
	ref     *ReferenceMetadata
}

// NewBuilder resolves the input plan, discovers missing geometry from
// the reference image, and fixes the cube shape and layout. The shape
// never changes after this point.
func NewBuilder(cfg *Config) (*Builder, error) {
	plan, err := cfg.resolveInputs()
	if err != nil {
		return nil, err
	}

	width, height, bitpix := cfg.Width, cfg.Height, cfg.Bitpix
	if width == 0 || height == 0 || bitpix == 0 {
		refPath := plan.paths[plan.pols[0]][0]
		buildlog.Infof("discovering cube geometry from %s", refPath)
		im, err := fits.OpenImage(refPath)
		if err != nil {
			return nil, fmt.Errorf("failed to probe reference image: %w", err)
		}
		nx, ny, dimErr := im.PlaneDims()
		probedBitpix := im.Bitpix()
		im.Close()
		if dimErr != nil {
			return nil, fmt.Errorf("failed to probe reference image: %w", dimErr)
		}
		if width == 0 {
			width = nx
		}
		if height == 0 {
			height = ny
		}
		if bitpix == 0 {
			bitpix = probedBitpix
		}
	}

	shape := CubeShape{
		X:       AxisSpec{Name: "RA", Extent: width, Unit: "deg"},
		Y:       AxisSpec{Name: "DEC", Extent: height, Unit: "deg"},
		Freq:    AxisSpec{Name: "FREQ", Extent: plan.channels, Unit: "Hz"},
		Pol:     AxisSpec{Name: "STOKES", Extent: len(plan.pols)},
		Element: ElementType(bitpix),
	}
	layout, err := ComputeLayout(shape, cfg.HeaderBlocks)
	if err != nil {
		return nil, err
	}

	noise := make([]ChannelNoise, plan.channels)
	for i := range noise {
		noise[i] = ChannelNoise{Channel: i, RMSI: math.NaN(), RMSV: math.NaN()}
	}

	return &Builder{
		cfg:     cfg,
		plan:    plan,
		layout:  layout,
		written: sroar.NewBitmap(),
		noise:   noise,
	}, nil
}

// Layout returns the fixed layout of the cube under construction.
func (b *Builder) Layout() Layout {
	return b.layout
}

// Run executes the build. Per-plane failures are collected into the
// report and also summarized in the returned error; structural
// failures (allocation, finalize) abort immediately. Cancelling the
// context stops the build between plane writes and leaves the file in
// an explicit incomplete state with the placeholder header.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	buildlog.Infof("reserving %s for %d planes (%s each) in %s",
		humanize.IBytes(uint64(b.layout.FileTotalSize)),
		b.layout.Shape.PlaneCount(),
		humanize.IBytes(uint64(b.layout.PlaneByteSize)),
		b.cfg.Output)

	f, err := Allocate(b.cfg.Output, b.layout,
		WithOverwrite(b.cfg.Overwrite), WithZeroFill(b.cfg.ZeroFill))
	if err != nil {
		return nil, err
	}
	b.file = f
	defer f.Close()

	workers := b.cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < b.plan.channels; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chanIdx := range jobs {
				if ctx.Err() != nil {
					return
				}
				b.processChannel(chanIdx)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return b.buildReport(start), fmt.Errorf("build aborted: %w", err)
	}

	if err := Finalize(b.file, b.layout, HeaderConfig{Object: b.cfg.Object}, b.ref); err != nil {
		return b.buildReport(start), err
	}
	if err := f.Sync(); err != nil {
		return b.buildReport(start), fmt.Errorf("failed to sync cube file: %w", err)
	}

	if b.cfg.StatisticsFile != "" && b.cfg.RMSThreshold > 0 {
		if err := WriteNoiseTable(b.cfg.StatisticsFile, b.noise); err != nil {
			buildlog.Errorf("failed to write noise statistics: %v", err)
		}
	}

	report := b.buildReport(start)
	buildlog.Infof("build finished in %s: %d planes written, %d failed, %d channels flagged",
		report.Elapsed.Round(time.Millisecond), report.Succeeded, len(report.Failures), len(report.Flagged))

	if len(report.Failures) > 0 {
		return report, fmt.Errorf("%d of %d planes failed", len(report.Failures), b.layout.Shape.PlaneCount())
	}
	return report, nil
}

// processChannel handles every polarization plane of one channel.
// Noise screening decides up front whether the channel is flagged, so
// the plane writers themselves never coordinate.
func (b *Builder) processChannel(chanIdx int) {
	screening := b.cfg.RMSThreshold > 0 && containsString(b.plan.pols, "V")
	threshold := b.cfg.RMSThreshold * 1e-6 // uJy/beam to Jy/beam

	row := ChannelNoise{Channel: chanIdx, RMSI: math.NaN(), RMSV: math.NaN()}

	if screening {
		vPath := b.plan.paths["V"][chanIdx]
		rms, err := b.planeNoiseFromFile(vPath)
		if err != nil {
			buildlog.Warningf("channel %d: cannot estimate Stokes V noise from %s: %v", chanIdx, vPath, err)
		} else {
			row.RMSV = rms
			row.Flagged = exceedsThreshold(rms, threshold)
		}
	}

	if row.Flagged {
		buildlog.Infof("channel %d: Stokes V noise %.2f uJy/beam outside threshold %.2f uJy/beam, flagging channel",
			chanIdx, row.RMSV*1e6, b.cfg.RMSThreshold)
		nan := &NaNSource{
			NX:   b.layout.Shape.X.Extent,
			NY:   b.layout.Shape.Y.Extent,
			Elem: b.layout.Shape.Element,
		}
		for polIdx, pol := range b.plan.pols {
			coord := PlaneCoordinate{Pol: polIdx, Chan: chanIdx}
			err := WritePlane(b.file, b.layout, coord, nan, b.cfg.ChunkSize)
			b.recordResult(coord, b.plan.paths[pol][chanIdx], err)
		}
		// The reference header is still harvested from a flagged
		// channel; flagging affects pixel data only.
		if chanIdx == 0 {
			b.harvestReferenceFrom(b.plan.paths[b.plan.pols[0]][0])
		}
		b.recordNoise(row)
		return
	}

	for polIdx, pol := range b.plan.pols {
		coord := PlaneCoordinate{Pol: polIdx, Chan: chanIdx}
		path := b.plan.paths[pol][chanIdx]
		err := b.writeImagePlane(coord, path, screening && pol == "I", &row)
		b.recordResult(coord, path, err)
	}
	b.recordNoise(row)
}

// writeImagePlane copies one source image into its slot. The worker
// that lands on the designated reference plane also harvests the
// metadata the final header needs.
func (b *Builder) writeImagePlane(coord PlaneCoordinate, path string, wantNoise bool, row *ChannelNoise) error {
	im, err := fits.OpenImage(path)
	if err != nil {
		return err
	}
	defer im.Close()

	if coord.Pol == 0 && coord.Chan == 0 {
		b.deliverReference(im.Header())
	}

	src, err := NewImageSource(im)
	if err != nil {
		return err
	}
	if wantNoise {
		rms, err := PlaneNoise(src)
		if err != nil {
			buildlog.Warningf("channel %d: cannot estimate Stokes I noise: %v", coord.Chan, err)
		} else {
			row.RMSI = rms
		}
	}

	buildlog.Debugf("writing plane (pol=%d, chan=%d) from %s", coord.Pol, coord.Chan, path)
	return WritePlane(b.file, b.layout, coord, src, b.cfg.ChunkSize)
}

func (b *Builder) planeNoiseFromFile(path string) (float64, error) {
	im, err := fits.OpenImage(path)
	if err != nil {
		return 0, err
	}
	defer im.Close()
	src, err := NewImageSource(im)
	if err != nil {
		return 0, err
	}
	return PlaneNoise(src)
}

// harvestReferenceFrom reads only the header of the reference image.
// Used when the reference channel was flagged and its pixel data never
// opened through the normal write path.
func (b *Builder) harvestReferenceFrom(path string) {
	im, err := fits.OpenImage(path)
	if err != nil {
		buildlog.Warningf("cannot harvest reference header from %s: %v", path, err)
		return
	}
	defer im.Close()
	b.deliverReference(im.Header())
}

func (b *Builder) deliverReference(h *fits.Header) {
	b.refOnce.Do(func() {
		meta := HarvestReference(h)
		b.ref = &meta
	})
}

func (b *Builder) recordResult(coord PlaneCoordinate, path string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		buildlog.Errorf("plane (pol=%d, chan=%d) from %s failed: %v", coord.Pol, coord.Chan, path, err)
		b.failures = append(b.failures, PlaneFailure{Coord: coord, Path: path, Err: err})
		return
	}
	b.succeeded++
	b.written.Set(uint64(b.layout.PlaneOrdinal(coord)))
}

func (b *Builder) recordNoise(row ChannelNoise) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.noise[row.Channel] = row
}

func (b *Builder) buildReport(start time.Time) *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	var flagged []int
	for _, row := range b.noise {
		if row.Flagged {
			flagged = append(flagged, row.Channel)
		}
	}
	failures := make([]PlaneFailure, len(b.failures))
	copy(failures, b.failures)

	var noise []ChannelNoise
	if b.cfg.RMSThreshold > 0 {
		noise = make([]ChannelNoise, len(b.noise))
		copy(noise, b.noise)
	}

	return &Report{
		Layout:    b.layout,
		Written:   b.written.Clone(),
		Succeeded: b.succeeded,
		Failures:  failures,
		Noise:     noise,
		Flagged:   flagged,
		Elapsed:   time.Since(start),
	}
}
