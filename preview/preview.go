// Package preview renders JPEG thumbnails for finalized frame records.
// Each thumbnail is independent and order-insensitive, so generation runs
// in a bounded worker pool after the unique frame list is finalized.
package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"framesift/types"
)

// maxWorkers caps the pool regardless of frame count.
const maxWorkers = 8

// Options bounds thumbnail geometry and encoding quality.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	// Workers overrides the pool size; 0 picks from CPU count, capped at 8.
	Workers int
}

// DefaultOptions matches the original thumbnail geometry.
func DefaultOptions() Options {
	return Options{MaxWidth: 400, MaxHeight: 300, Quality: 92}
}

// Preview is one encoded thumbnail, keyed by the frame's decode index.
type Preview struct {
	Index int
	Data  []byte
}

// Generate renders thumbnails for frames with a bounded pool, reporting
// stage generating_previews. Per-frame failures are logged and skipped,
// never fatal; results come back sorted by frame index.
func Generate(frames []types.FrameRecord, opts Options, sink types.Sink, log *zap.Logger) []Preview {
	if len(frames) == 0 {
		return nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	sink.Emit(types.ProgressSnapshot{
		Stage:       types.StageGeneratingPreviews,
		TotalFrames: len(frames),
		KeptCount:   len(frames),
	})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		previews  []Preview
		completed int
	)
	semaphore := make(chan struct{}, workers)

	for i := range frames {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(frame types.FrameRecord) {
			defer wg.Done()
			defer func() { <-semaphore }()

			data, err := Encode(frame, opts.MaxWidth, opts.MaxHeight, opts.Quality)

			// Emitting under the lock keeps percent monotonic across
			// workers.
			mu.Lock()
			completed++
			if err != nil {
				log.Warn("thumbnail generation failed",
					zap.Int("frame", frame.Index), zap.Error(err))
			} else {
				previews = append(previews, Preview{Index: frame.Index, Data: data})
			}
			if completed%10 == 0 || completed == len(frames) {
				sink.Emit(types.ProgressSnapshot{
					Stage:        types.StageGeneratingPreviews,
					CurrentIndex: frame.Index,
					TotalFrames:  len(frames),
					Percent:      float64(completed) / float64(len(frames)) * 100,
					KeptCount:    len(frames),
				})
			}
			mu.Unlock()
		}(frames[i])
	}
	wg.Wait()

	sort.Slice(previews, func(i, j int) bool { return previews[i].Index < previews[j].Index })
	return previews
}

// Encode renders one frame as a JPEG no larger than maxWidth x maxHeight,
// preserving aspect ratio. maxWidth/maxHeight of 0 encode at full size.
func Encode(frame types.FrameRecord, maxWidth, maxHeight, quality int) ([]byte, error) {
	img := toImage(frame)

	w, h := frame.Width, frame.Height
	if maxWidth > 0 && maxHeight > 0 && (w > maxWidth || h > maxHeight) {
		scaleW := float64(maxWidth) / float64(w)
		scaleH := float64(maxHeight) / float64(h)
		scale := scaleW
		if scaleH < scale {
			scale = scaleH
		}
		tw := int(float64(w) * scale)
		th := int(float64(h) * scale)
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, tw, th))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)
		img = scaled
	}

	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toImage expands the packed RGB raster into an RGBA image for the stdlib
// encoders. The record itself stays untouched.
func toImage(frame types.FrameRecord) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		src := y * frame.Width * 3
		dst := y * img.Stride
		for x := 0; x < frame.Width; x++ {
			img.Pix[dst] = frame.Raster[src]
			img.Pix[dst+1] = frame.Raster[src+1]
			img.Pix[dst+2] = frame.Raster[src+2]
			img.Pix[dst+3] = 0xff
			src += 3
			dst += 4
		}
	}
	return img
}
