package narrator_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-narrator/internal/audio"
	"github.com/book-expert/voice-narrator/internal/core"
	"github.com/book-expert/voice-narrator/internal/narrator"
	"github.com/book-expert/voice-narrator/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeParagraphs = "First paragraph here.\n\nSecond paragraph now.\n\nThird paragraph last."

func TestManual_DefaultOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	synth := &stubSynth{t: t}

	job, err := narrator.Resolve(narrator.ModeManual, narrator.Flags{Text: "Hello world"}, testNarratorConfig(), log)
	require.NoError(t, err)
	require.Equal(t, "output.wav", job.Output)

	job.Output = filepath.Join(dir, job.Output)

	result, err := narrator.New(synth, testNarratorConfig(), log).Manual(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{job.Output}, result.Files)
	assert.Equal(t, []int{1, 1}, readSamples(t, job.Output))
	assert.Equal(t, []string{"Hello world"}, synth.texts())
	assert.Equal(t, []string{"output.wav"}, listDir(t, dir))
}

func TestManual_CalmStyle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	synth := &stubSynth{t: t}

	job, err := narrator.Resolve(narrator.ModeManual, narrator.Flags{
		Text:       "Calm scene",
		VoiceStyle: voice.Calm,
		Output:     filepath.Join(dir, "scene.wav"),
		Device:     core.DeviceCPU,
	}, testNarratorConfig(), log)
	require.NoError(t, err)

	_, err = narrator.New(synth, testNarratorConfig(), log).Manual(context.Background(), job)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dir, "scene.wav"))
	require.Len(t, synth.calls, 1)
	assert.Equal(t, core.VoiceConfig{
		Style:        voice.Calm,
		Exaggeration: voice.Presets[voice.Calm].Exaggeration,
		CFGWeight:    voice.Presets[voice.Calm].CFGWeight,
		Device:       core.DeviceCPU,
	}, synth.calls[0].voice)
}

func TestManual_SynthesisFailureWritesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)

	job, err := narrator.Resolve(narrator.ModeManual, narrator.Flags{
		Text:   "Hello",
		Output: filepath.Join(dir, "out.wav"),
	}, testNarratorConfig(), log)
	require.NoError(t, err)

	_, err = narrator.New(&stubSynth{t: t, failAt: 1}, testNarratorConfig(), log).Manual(context.Background(), job)
	require.ErrorIs(t, err, core.ErrSynthesis)
	require.ErrorIs(t, err, errDeviceOOM)
	assert.Empty(t, listDir(t, dir))
}

func TestAuto_PreservesChunkOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outputDir := filepath.Join(dir, "out")
	log := newTestLogger(t)
	synth := &stubSynth{t: t}
	input := writeText(t, dir, "war_story.txt", threeParagraphs)

	job, err := narrator.Resolve(narrator.ModeAuto, narrator.Flags{InputPath: input, OutputDir: outputDir},
		testNarratorConfig(), log)
	require.NoError(t, err)

	result, err := narrator.New(synth, testNarratorConfig(), log).Auto(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"First paragraph here.", "Second paragraph now.", "Third paragraph last."}, synth.texts())
	assert.Equal(t, []string{voice.Neutral, voice.Calm, voice.Neutral}, synth.styles())

	assert.Equal(t, 3, result.Segments)
	assert.Equal(t, []string{
		"war_story_complete.wav",
		"war_story_segment_001.wav",
		"war_story_segment_002.wav",
		"war_story_segment_003.wav",
	}, listDir(t, outputDir))
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3}, readSamples(t, filepath.Join(outputDir, "war_story_complete.wav")))
	assert.Equal(t, []int{2, 2}, readSamples(t, filepath.Join(outputDir, "war_story_segment_002.wav")))
}

func TestAuto_PauseBetweenSegments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	input := writeText(t, dir, "two.txt", "First paragraph here.\n\nSecond paragraph now.")

	cfg := testNarratorConfig()
	cfg.PauseSeconds = 0.25
	cfg.KeepSegments = false

	job, err := narrator.Resolve(narrator.ModeAuto, narrator.Flags{InputPath: input, OutputDir: dir}, cfg, log)
	require.NoError(t, err)

	_, err = narrator.New(&stubSynth{t: t}, cfg, log).Auto(context.Background(), job)
	require.NoError(t, err)

	// 0.25s at 8 kHz is 2000 frames of silence.
	samples := readSamples(t, filepath.Join(dir, "two_complete.wav"))
	require.Len(t, samples, 2+2000+2)
	assert.Equal(t, []int{1, 1}, samples[:2])
	assert.Equal(t, make([]int, 2000), samples[2:2002])
	assert.Equal(t, []int{2, 2}, samples[2002:])
	assert.NoFileExists(t, filepath.Join(dir, "two_segment_001.wav"))
}

func TestAuto_FailingChunkProducesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outputDir := filepath.Join(dir, "out")
	log := newTestLogger(t)
	input := writeText(t, dir, "story.txt", threeParagraphs)

	job, err := narrator.Resolve(narrator.ModeAuto, narrator.Flags{InputPath: input, OutputDir: outputDir},
		testNarratorConfig(), log)
	require.NoError(t, err)

	synth := &stubSynth{t: t, failAt: 2}

	_, err = narrator.New(synth, testNarratorConfig(), log).Auto(context.Background(), job)
	require.ErrorIs(t, err, core.ErrSynthesis)
	require.ErrorIs(t, err, errDeviceOOM)

	assert.Len(t, synth.calls, 2)
	assert.Empty(t, listDir(t, outputDir))
}

func TestAuto_MalformedChunkAudio(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	input := writeText(t, dir, "story.txt", threeParagraphs)

	job, err := narrator.Resolve(narrator.ModeAuto, narrator.Flags{InputPath: input, OutputDir: dir},
		testNarratorConfig(), log)
	require.NoError(t, err)

	synth := core.SynthesizerFunc(func(context.Context, string, core.VoiceConfig) ([]byte, error) {
		return []byte("not audio"), nil
	})

	_, err = narrator.New(synth, testNarratorConfig(), log).Auto(context.Background(), job)
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
	assert.NoFileExists(t, filepath.Join(dir, "story_complete.wav"))
}

func TestAuto_SaveStoryAndNormalize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	synth := &stubSynth{t: t}
	input := writeText(t, dir, "field-notes.md", "# Orders\n\nDr. Smith arrived in 1944.\n\n```\ncode\n```\n")
	storyPath := filepath.Join(dir, "stories", "field-notes.json")

	cfg := testNarratorConfig()
	cfg.SegmentLength = 250
	cfg.NormalizeText = true

	job, err := narrator.Resolve(narrator.ModeAuto, narrator.Flags{
		InputPath: input,
		OutputDir: dir,
		SaveStory: storyPath,
	}, cfg, log)
	require.NoError(t, err)

	_, err = narrator.New(synth, cfg, log).Auto(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"Orders. Doctor Smith arrived in nineteen forty-four."}, synth.texts())

	story, err := narrator.LoadStory(storyPath)
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", story.Title)
	assert.Equal(t, "Auto-generated from field-notes.md", story.Description)
	require.Len(t, story.Segments, 1)
	assert.Equal(t, "Orders.\n\nDr. Smith arrived in 1944.", story.Segments[0].Text)
}

func TestStory_SegmentSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := newTestLogger(t)
	synth := &stubSynth{t: t}
	prompt := writeText(t, dir, "sergeant.wav", "RIFF")
	noFull := false

	story := &narrator.Story{
		Title:           "Patrol",
		Settings:        narrator.StorySettings{VoiceStyle: voice.Calm, AudioPrompt: prompt},
		CreateFullAudio: &noFull,
		Segments: []narrator.StorySegment{
			{Text: "We moved at dawn."},
			{Text: "   "},
			{
				Text:        "Contact left!",
				VoiceStyle:  voice.Neutral,
				AudioPrompt: filepath.Join(dir, "missing.wav"),
				TTSParams:   &voice.Overrides{Exaggeration: 0.9, Temperature: 0.6},
			},
		},
	}

	storyPath := filepath.Join(dir, "patrol.json")
	require.NoError(t, narrator.SaveStory(storyPath, story))

	outputDir := filepath.Join(dir, "out")

	job, err := narrator.Resolve(narrator.ModeStory, narrator.Flags{InputPath: storyPath, OutputDir: outputDir},
		testNarratorConfig(), log)
	require.NoError(t, err)

	results, err := narrator.New(synth, testNarratorConfig(), log).Story(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.Len(t, synth.calls, 2)
	assert.Equal(t, voice.Calm, synth.calls[0].voice.Style)
	assert.Equal(t, prompt, synth.calls[0].voice.AudioPromptPath)
	assert.Equal(t, core.VoiceConfig{
		Style:        voice.Neutral,
		Exaggeration: 0.9,
		CFGWeight:    voice.Presets[voice.Neutral].CFGWeight,
		Temperature:  0.6,
		Device:       core.DeviceCUDA,
	}, synth.calls[1].voice)

	assert.Equal(t, []string{"patrol_segment_001.wav", "patrol_segment_003.wav"}, listDir(t, outputDir))
}

func TestStory_BatchContinuesPastFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stories := filepath.Join(dir, "stories")
	outputDir := filepath.Join(dir, "out")
	log := newTestLogger(t)
	require.NoError(t, os.Mkdir(stories, 0o750))

	good, err := json.Marshal(narrator.Story{Title: "Good", Segments: []narrator.StorySegment{{Text: "All quiet."}}})
	require.NoError(t, err)

	writeText(t, stories, "a_broken.json", "{not json")
	writeText(t, stories, "b_good.json", string(good))
	writeText(t, stories, "c_empty.json", `{"title": "Empty", "segments": []}`)
	writeText(t, stories, "notes.txt", "ignored")

	job, err := narrator.Resolve(narrator.ModeStory, narrator.Flags{InputPath: stories, OutputDir: outputDir},
		testNarratorConfig(), log)
	require.NoError(t, err)

	results, err := narrator.New(&stubSynth{t: t}, testNarratorConfig(), log).Story(context.Background(), job)
	require.ErrorIs(t, err, narrator.ErrInvalidStory)
	assert.Contains(t, err.Error(), "a_broken.json")
	assert.Contains(t, err.Error(), "c_empty.json")

	require.Len(t, results, 1)
	assert.Equal(t, "b_good", results[0].Name)
	assert.Equal(t, []string{"b_good_complete.wav", "b_good_segment_001.wav"}, listDir(t, outputDir))
}

func TestNarrate(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	synth := &stubSynth{t: t}

	var progress []narrator.Progress

	pipeline := narrator.New(synth, testNarratorConfig(), log, narrator.WithProgress(func(p narrator.Progress) {
		progress = append(progress, p)
	}))

	wavData, chunks, err := pipeline.Narrate(context.Background(), threeParagraphs, voice.Calm, voice.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
	assert.Equal(t, []string{voice.Calm, voice.Calm, voice.Calm}, synth.styles())
	assert.Len(t, progress, 3)
	assert.Equal(t, narrator.Progress{Done: 3, Total: 3, Style: voice.Calm}, progress[2])

	buffer, err := audio.Decode(wavData)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3}, buffer.Samples)

	_, _, err = pipeline.Narrate(context.Background(), "  ", voice.Calm, voice.Overrides{})
	require.ErrorIs(t, err, narrator.ErrNoText)
}

func TestTitleFromPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "War Story Part 1", narrator.TitleFromPath("/books/war_story-part-1.txt"))
}
