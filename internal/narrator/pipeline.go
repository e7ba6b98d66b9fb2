package narrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-narrator/internal/audio"
	"github.com/book-expert/voice-narrator/internal/config"
	"github.com/book-expert/voice-narrator/internal/core"
	"github.com/book-expert/voice-narrator/internal/fileutil"
	"github.com/book-expert/voice-narrator/internal/text"
	"github.com/book-expert/voice-narrator/internal/voice"
)

const (
	segmentFileFormat  = "%s_segment_%03d.wav"
	completeFileFormat = "%s_complete.wav"
)

// ErrNoText is returned when the input contains nothing to narrate.
var ErrNoText = errors.New("no text to narrate")

// Progress reports one finished synthesis call.
type Progress struct {
	// Done counts the chunks synthesized so far, including this one.
	Done int

	// Total is the number of segments in the job. Skipped empty segments
	// are counted here but never reported as done.
	Total int

	// Style is the voice style used for the chunk.
	Style string
}

// Result summarises one completed run.
type Result struct {
	// Name is the sanitized stem used for the output file names.
	Name string

	// Files lists every file written, segment files first and the
	// assembled file last.
	Files []string

	// Segments is the number of chunks that were synthesized.
	Segments int

	// Bytes is the total size of the files written.
	Bytes int64

	// Audio is the playback length of the assembled narration, pauses included.
	Audio time.Duration

	// Elapsed is the wall-clock time of the run.
	Elapsed time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress registers a callback invoked after each synthesis call.
func WithProgress(fn func(Progress)) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// Pipeline runs narration jobs against one synthesizer. Chunks are
// synthesized one at a time in source order.
type Pipeline struct {
	synth        core.Synthesizer
	cfg          config.NarratorConfig
	segmenter    *text.Segmenter
	preprocessor *text.Preprocessor
	assembler    *audio.Assembler
	log          *logger.Logger
	progress     func(Progress)
}

// New creates a pipeline that synthesizes through synth. cfg supplies the
// segment length, pause, voice pattern, device used by Narrate and the
// keep_segments and normalize_text switches.
func New(synth core.Synthesizer, cfg config.NarratorConfig, log *logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		synth:        synth,
		cfg:          cfg,
		segmenter:    text.NewSegmenter(cfg.SegmentLength),
		preprocessor: text.NewPreprocessor(),
		assembler:    audio.NewAssembler(cfg.PauseSeconds),
		log:          log,
		progress:     func(Progress) {},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Manual synthesizes job.Text once and writes the WAV to job.Output.
//
// The text is not segmented, and the payload is written exactly as the
// backend returned it, creating parent directories as needed. A synthesis
// failure writes nothing.
func (p *Pipeline) Manual(ctx context.Context, job *Job) (*Result, error) {
	start := time.Now()

	voiceCfg, err := voice.Map(job.VoiceStyle, job.VoicePrompt, job.Device, job.Overrides)
	if err != nil {
		return nil, err
	}

	p.log.Info("Manual synthesis: style=%s device=%s output=%s", voiceCfg.Style, voiceCfg.Device, job.Output)

	audioData, err := p.synthesize(ctx, job.Text, voiceCfg)
	if err != nil {
		return nil, err
	}

	p.progress(Progress{Done: 1, Total: 1, Style: voiceCfg.Style})

	err = audio.WriteBytes(job.Output, audioData)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Name:     fileutil.Stem(job.Output),
		Files:    []string{job.Output},
		Segments: 1,
		Bytes:    int64(len(audioData)),
		Elapsed:  time.Since(start),
	}

	if buffer, decodeErr := audio.Decode(audioData); decodeErr == nil {
		result.Audio = buffer.Duration()
	}

	return result, nil
}

// Auto segments the input file, assigns styles from the configured pattern
// and renders the result into job.OutputDir.
//
// Chunks are synthesized one at a time in source order and kept in memory.
// Files are written only after every chunk succeeded: <stem>_complete.wav
// always, plus <stem>_segment_NNN.wav when keep_segments is set. When
// job.SaveStory is set the generated story JSON is written there before
// synthesis starts. An input that segments into nothing fails with ErrNoText.
func (p *Pipeline) Auto(ctx context.Context, job *Job) (*Result, error) {
	pattern, err := voice.NewPattern(p.cfg.VoicePattern)
	if err != nil {
		return nil, err
	}

	source, err := text.LoadFile(job.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	chunks := p.segmenter.Split(source)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, job.InputPath)
	}

	p.log.Info("Segmented '%s' into %d chunks (estimated %s)", job.InputPath, len(chunks),
		fileutil.FormatDuration(fileutil.EstimateProcessingTime(len(chunks)).Seconds()))

	story := BuildStory(job.InputPath, chunks, pattern, job.VoicePrompt)

	if job.SaveStory != "" {
		err = SaveStory(job.SaveStory, story)
		if err != nil {
			return nil, err
		}

		p.log.Info("Saved generated story to %s", job.SaveStory)
	}

	return p.render(ctx, story, storyName(job.InputPath), job)
}

// Story renders a story document. When job.InputPath is a directory every
// story in it is rendered; a failing story is reported and the batch goes on.
//
// The returned results cover the stories that succeeded. Failures are joined
// into the returned error, each prefixed with the file name. Cancelling ctx
// stops the batch before the next story.
func (p *Pipeline) Story(ctx context.Context, job *Job) ([]*Result, error) {
	info, err := os.Stat(job.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	if !info.IsDir() {
		result, err := p.storyFile(ctx, job.InputPath, job)
		if err != nil {
			return nil, err
		}

		return []*Result{result}, nil
	}

	files, err := StoryFiles(job.InputPath)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no story files in %s", ErrUsage, job.InputPath)
	}

	var (
		results  []*Result
		failures []error
	)

	for _, file := range files {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())

			break
		}

		result, err := p.storyFile(ctx, file, job)
		if err != nil {
			p.log.Error("Failed to process story '%s': %v", file, err)
			failures = append(failures, fmt.Errorf("%s: %w", filepath.Base(file), err))

			continue
		}

		results = append(results, result)
	}

	return results, errors.Join(failures...)
}

// Narrate segments text, synthesizes every chunk with one style and returns
// the assembled WAV payload without touching the filesystem.
//
// The second result is the number of chunks synthesized. The device comes
// from the pipeline configuration and no voice prompt is used. The payload
// is 16-bit PCM whatever the backend produced.
func (p *Pipeline) Narrate(ctx context.Context, source, style string, overrides voice.Overrides) ([]byte, int, error) {
	voiceCfg, err := voice.Map(style, "", p.cfg.Device, overrides)
	if err != nil {
		return nil, 0, err
	}

	chunks := p.segmenter.Split(source)
	if len(chunks) == 0 {
		return nil, 0, ErrNoText
	}

	payloads := make([][]byte, 0, len(chunks))

	for _, chunk := range chunks {
		audioData, err := p.synthesize(ctx, chunk.Text, voiceCfg)
		if err != nil {
			return nil, 0, fmt.Errorf("chunk %d/%d: %w", chunk.Index+1, len(chunks), err)
		}

		payloads = append(payloads, audioData)
		p.progress(Progress{Done: chunk.Index + 1, Total: len(chunks), Style: style})
	}

	buffer, err := p.assembler.Assemble(payloads)
	if err != nil {
		return nil, 0, err
	}

	wavData, err := audio.EncodeBytes(buffer)
	if err != nil {
		return nil, 0, err
	}

	return wavData, len(chunks), nil
}

func (p *Pipeline) storyFile(ctx context.Context, path string, job *Job) (*Result, error) {
	story, err := LoadStory(path)
	if err != nil {
		return nil, err
	}

	return p.render(ctx, story, storyName(path), job)
}

// render synthesizes every segment of story and, only when all succeeded,
// writes the segment files and the assembled file into job.OutputDir.
func (p *Pipeline) render(ctx context.Context, story *Story, name string, job *Job) (*Result, error) {
	start := time.Now()

	err := story.Validate()
	if err != nil {
		return nil, err
	}

	prompts := map[string]string{}
	rendered := make([]renderedSegment, 0, len(story.Segments))

	for i := range story.Segments {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("narration of '%s' cancelled: %w", name, ctx.Err())
		}

		segmentText := story.Segments[i].Text
		if strings.TrimSpace(segmentText) == "" {
			p.log.Warn("Skipping empty segment %d of '%s'", i+1, name)

			continue
		}

		prompt, seen := prompts[story.AudioPrompt(i)]
		if !seen {
			prompt = ResolveVoicePrompt(story.AudioPrompt(i), p.log)
			prompts[story.AudioPrompt(i)] = prompt
		}

		voiceCfg, err := voice.Map(story.Style(i), prompt, job.Device, story.Overrides(i))
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}

		audioData, err := p.synthesize(ctx, segmentText, voiceCfg)
		if err != nil {
			return nil, fmt.Errorf("segment %d/%d of '%s': %w", i+1, len(story.Segments), name, err)
		}

		rendered = append(rendered, renderedSegment{number: i + 1, data: audioData})

		p.progress(Progress{Done: len(rendered), Total: len(story.Segments), Style: voiceCfg.Style})
	}

	return p.write(story, name, job.OutputDir, rendered, start)
}

// renderedSegment is the synthesized audio of one story segment. number is
// 1-based and follows the story, so skipped segments leave gaps.
type renderedSegment struct {
	number int
	data   []byte
}

func (p *Pipeline) write(
	story *Story,
	name, outputDir string,
	rendered []renderedSegment,
	start time.Time,
) (*Result, error) {
	payloads := make([][]byte, 0, len(rendered))
	for _, segment := range rendered {
		payloads = append(payloads, segment.data)
	}

	buffer, err := p.assembler.Assemble(payloads)
	if err != nil {
		return nil, err
	}

	result := &Result{Name: name, Segments: len(rendered), Audio: buffer.Duration()}

	err = fileutil.EnsureDir(outputDir)
	if err != nil {
		return nil, err
	}

	if p.cfg.KeepSegments || !story.FullAudio() {
		for _, segment := range rendered {
			path := filepath.Join(outputDir, fmt.Sprintf(segmentFileFormat, name, segment.number))

			err = audio.WriteBytes(path, segment.data)
			if err != nil {
				removeAll(result.Files)

				return nil, err
			}

			result.Files = append(result.Files, path)
			result.Bytes += int64(len(segment.data))
		}
	}

	if story.FullAudio() {
		path := filepath.Join(outputDir, fmt.Sprintf(completeFileFormat, name))

		written, err := audio.WriteFile(path, buffer)
		if err != nil {
			removeAll(result.Files)

			return nil, err
		}

		result.Files = append(result.Files, path)
		result.Bytes += written
	}

	result.Elapsed = time.Since(start)
	p.log.Info("Narrated '%s': %d segments, %d files, %s of audio", name, result.Segments,
		len(result.Files), result.Audio)

	return result, nil
}

func (p *Pipeline) synthesize(ctx context.Context, segmentText string, voiceCfg core.VoiceConfig) ([]byte, error) {
	if p.cfg.NormalizeText {
		segmentText = p.preprocessor.Normalize(segmentText)
	}

	audioData, err := p.synth.Synthesize(ctx, segmentText, voiceCfg)
	if err != nil {
		if errors.Is(err, core.ErrSynthesis) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	return audioData, nil
}

func storyName(path string) string {
	return fileutil.SanitizeFilename(fileutil.Stem(path))
}

func removeAll(paths []string) {
	for _, path := range paths {
		_ = os.Remove(path)
	}
}
