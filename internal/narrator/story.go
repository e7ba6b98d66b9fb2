package narrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-narrator/internal/fileutil"
	"github.com/book-expert/voice-narrator/internal/text"
	"github.com/book-expert/voice-narrator/internal/voice"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	storyFilePermissions = 0o600
	extJSON              = ".json"
)

// ErrInvalidStory is returned for a story document with nothing to narrate.
var ErrInvalidStory = errors.New("invalid story")

// StorySettings are the defaults applied to every segment.
type StorySettings struct {
	VoiceStyle  string `json:"voice_style,omitempty"`
	AudioPrompt string `json:"audio_prompt,omitempty"`
}

// StorySegment is one unit of narration with optional per-segment settings.
type StorySegment struct {
	// Text is spoken as one synthesis call. Blank segments are skipped.
	Text string `json:"text"`

	// VoiceStyle overrides Settings.VoiceStyle for this segment.
	VoiceStyle string `json:"voice_style,omitempty"`

	// AudioPrompt overrides Settings.AudioPrompt for this segment.
	AudioPrompt string `json:"audio_prompt,omitempty"`

	// TTSParams overrides individual parameters of the style preset.
	// Zero values keep the preset.
	TTSParams *voice.Overrides `json:"tts_params,omitempty"`
}

// Story is an ordered list of segments rendered into one narration.
type Story struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Settings    StorySettings `json:"settings"`

	// CreateFullAudio controls whether the assembled file is written. When
	// false only segment files are produced. Absent means true.
	CreateFullAudio *bool `json:"create_full_audio,omitempty"`

	Segments []StorySegment `json:"segments"`
}

// FullAudio reports whether the assembled file should be written. It
// defaults to true.
func (s *Story) FullAudio() bool {
	return s.CreateFullAudio == nil || *s.CreateFullAudio
}

// Style returns the effective style of segment i.
func (s *Story) Style(i int) string {
	return firstNonEmpty(s.Segments[i].VoiceStyle, s.Settings.VoiceStyle, voice.Neutral)
}

// AudioPrompt returns the effective reference clip of segment i.
func (s *Story) AudioPrompt(i int) string {
	return firstNonEmpty(s.Segments[i].AudioPrompt, s.Settings.AudioPrompt)
}

// Overrides returns the parameter overrides of segment i.
func (s *Story) Overrides(i int) voice.Overrides {
	if s.Segments[i].TTSParams == nil {
		return voice.Overrides{}
	}

	return *s.Segments[i].TTSParams
}

// Validate checks the story has narratable text and known styles.
func (s *Story) Validate() error {
	narratable := 0

	for i, segment := range s.Segments {
		if strings.TrimSpace(segment.Text) != "" {
			narratable++
		}

		_, err := voice.Lookup(s.Style(i))
		if err != nil {
			return fmt.Errorf("segment %d: %w", i+1, err)
		}
	}

	if narratable == 0 {
		return fmt.Errorf("%w: no segments with text", ErrInvalidStory)
	}

	return nil
}

// BuildStory turns chunks into a story, assigning styles from pattern.
// Segments using the default neutral style carry no explicit style.
func BuildStory(sourcePath string, chunks []text.Chunk, pattern voice.Pattern, audioPrompt string) *Story {
	story := &Story{
		Title:       TitleFromPath(sourcePath),
		Description: "Auto-generated from " + filepath.Base(sourcePath),
		Settings: StorySettings{
			VoiceStyle:  voice.Neutral,
			AudioPrompt: audioPrompt,
		},
		Segments: make([]StorySegment, 0, len(chunks)),
	}

	for _, chunk := range chunks {
		segment := StorySegment{Text: chunk.Text}
		if style := pattern.At(chunk.Index); style != voice.Neutral {
			segment.VoiceStyle = style
		}

		story.Segments = append(story.Segments, segment)
	}

	return story
}

// TitleFromPath derives a display title from a file name,
// e.g. "war_story-part-1.txt" becomes "War Story Part 1".
func TitleFromPath(path string) string {
	words := strings.NewReplacer("-", " ", "_", " ").Replace(fileutil.Stem(path))

	return cases.Title(language.English).String(strings.Join(strings.Fields(words), " "))
}

// LoadStory reads and validates a story document.
func LoadStory(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read story '%s': %w", path, err)
	}

	var story Story

	err = json.Unmarshal(data, &story)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse '%s': %w", ErrInvalidStory, path, err)
	}

	err = story.Validate()
	if err != nil {
		return nil, fmt.Errorf("story '%s': %w", path, err)
	}

	return &story, nil
}

// SaveStory writes story as indented JSON.
func SaveStory(path string, story *Story) error {
	data, err := json.MarshalIndent(story, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal story: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		err = fileutil.EnsureDir(dir)
		if err != nil {
			return err
		}
	}

	err = os.WriteFile(path, append(data, '\n'), storyFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to write story '%s': %w", path, err)
	}

	return nil
}

// StoryFiles lists the story documents in dir in name order.
func StoryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read story directory '%s': %w", dir, err)
	}

	var files []string

	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), extJSON) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	return files, nil
}
