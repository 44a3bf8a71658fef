// package formatter exports lyric timelines (LRC, SRT, Markdown, plain text, JSON) and offset records (YAML, JSON)
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/lyrx/internal/models"
	"github.com/desertthunder/lyrx/internal/shared"
	"gopkg.in/yaml.v3"
)

// Export formats accepted by [WriteLyricsExport].
const (
	FormatLRC      = "lrc"
	FormatSRT      = "srt"
	FormatText     = "txt"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// LyricsExport is a timeline with the track it belongs to.
type LyricsExport struct {
	Artist     string                `json:"artist"`
	Title      string                `json:"title"`
	Album      string                `json:"album,omitempty"`
	DurationMS int64                 `json:"duration_ms,omitempty"`
	ArtworkURL string                `json:"artwork_url,omitempty"`
	Timeline   *models.LyricTimeline `json:"timeline"`
}

// Extension returns the file extension used for format.
func Extension(format string) string {
	switch format {
	case FormatLRC:
		return ".lrc"
	case FormatSRT:
		return ".srt"
	case FormatText:
		return ".txt"
	case FormatMarkdown:
		return ".md"
	default:
		return ".json"
	}
}

// ExportToLRC renders an LRC file with ar/ti/al/length tags followed by one timestamped line per lyric line.
func ExportToLRC(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[ar:%s]\n", export.Artist)
	fmt.Fprintf(&buf, "[ti:%s]\n", export.Title)
	if export.Album != "" {
		fmt.Fprintf(&buf, "[al:%s]\n", export.Album)
	}
	if export.DurationMS > 0 {
		fmt.Fprintf(&buf, "[length:%s]\n", lrcLength(export.DurationMS))
	}

	for _, line := range lines(export) {
		fmt.Fprintf(&buf, "[%s]%s\n", LRCTimestamp(line.Start), line.Text)
	}
	return buf.Bytes(), nil
}

// ExportToSRT renders numbered SubRip cues spanning each line's interval.
func ExportToSRT(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer

	for i, line := range lines(export) {
		fmt.Fprintf(&buf, "%d\n%s --> %s\n%s\n\n", i+1, SRTTimestamp(line.Start), SRTTimestamp(line.End), line.Text)
	}
	return buf.Bytes(), nil
}

// ExportToText renders an "Artist - Title" heading followed by the bare lyric text.
func ExportToText(export *LyricsExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s - %s\n", export.Artist, export.Title)
	if export.Timeline.IsInstrumental() {
		buf.WriteString("\n(instrumental)\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("\n")
	for _, line := range lines(export) {
		buf.WriteString(line.Text + "\n")
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders a Markdown page with an optional cover image.
func ExportToMarkdown(export *LyricsExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Title)
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Artist**: %s\n", export.Artist)
	if export.Album != "" {
		fmt.Fprintf(&buf, "**Album**: %s\n", export.Album)
	}
	if t := export.Timeline; t != nil {
		fmt.Fprintf(&buf, "**Source**: %s (%s, confidence %.2f)\n", t.Source, t.Quality, t.Confidence)
	}
	buf.WriteString("\n## Lyrics\n\n")

	if export.Timeline.IsInstrumental() {
		buf.WriteString("_Instrumental_\n")
		return buf.Bytes(), nil
	}
	for _, line := range lines(export) {
		fmt.Fprintf(&buf, "`%s` %s  \n", LRCTimestamp(line.Start), line.Text)
	}
	return buf.Bytes(), nil
}

// ExportToJSON renders the export as indented JSON.
func ExportToJSON(export *LyricsExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lyrics: %w", err)
	}
	return append(data, '\n'), nil
}

// Render dispatches to the exporter for format. Unknown formats fail with [shared.ErrInvalidArgument].
func Render(export *LyricsExport, format string) ([]byte, error) {
	if export == nil || export.Timeline == nil {
		return nil, fmt.Errorf("%w: nothing to export", shared.ErrInvalidArgument)
	}

	switch format {
	case FormatLRC:
		return ExportToLRC(export)
	case FormatSRT:
		return ExportToSRT(export)
	case FormatText:
		return ExportToText(export)
	case FormatMarkdown:
		return ExportToMarkdown(export, "")
	case FormatJSON, "":
		return ExportToJSON(export)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return imageData, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when the export has artwork, {dir}/cover.jpg.
//
// A failed cover download is logged to stderr and the page is written without it.
func WriteMarkdownExport(export *LyricsExport, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = FileStem(export.Artist, export.Title)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var coverImageFilename string
	if export.ArtworkURL != "" {
		imageData, err := DownloadImage(export.ArtworkURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(export, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)
	return result, nil
}

// WriteLyricsExport writes export in format under dir and returns the files created.
//
// Markdown exports get their own directory; the other formats write a single {artist}_{title} file.
func WriteLyricsExport(export *LyricsExport, format, dir string) ([]string, error) {
	if format == FormatMarkdown {
		res, err := WriteMarkdownExport(export, filepath.Join(dir, FileStem(export.Artist, export.Title)))
		if err != nil {
			return nil, err
		}
		return res.Files, nil
	}

	data, err := Render(export, format)
	if err != nil {
		return nil, err
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	path := filepath.Join(dir, FileStem(export.Artist, export.Title)+Extension(format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return []string{path}, nil
}

// FileStem builds a filesystem-safe base name from artist and title: "artist_title", lowercased, spaces replaced
// by underscores.
func FileStem(artist, title string) string {
	stem := strings.ReplaceAll(shared.NormalizeKey(artist)+"_"+shared.NormalizeKey(title), " ", "_")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, stem)
}

// LRCTimestamp formats ms as mm:ss.cc.
func LRCTimestamp(ms int64) string {
	ms = max(ms, 0)
	return fmt.Sprintf("%02d:%02d.%02d", ms/60000, (ms/1000)%60, (ms%1000)/10)
}

// SRTTimestamp formats ms as hh:mm:ss,mmm.
func SRTTimestamp(ms int64) string {
	ms = max(ms, 0)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

func lrcLength(ms int64) string {
	return fmt.Sprintf("%02d:%02d", ms/60000, (ms/1000)%60)
}

func lines(export *LyricsExport) []models.LyricLine {
	if export.Timeline == nil {
		return nil
	}
	return export.Timeline.Lines
}

// offsetFile is the document layout for exported offsets.
type offsetFile struct {
	Version  int                         `json:"version" yaml:"version"`
	Exported time.Time                   `json:"exported" yaml:"exported"`
	Records  []*models.TrackOffsetRecord `json:"records" yaml:"records"`
}

const offsetFileVersion = 1

// ExportOffsetsYAML renders records as a YAML document.
func ExportOffsetsYAML(records []*models.TrackOffsetRecord) ([]byte, error) {
	data, err := yaml.Marshal(offsetFile{Version: offsetFileVersion, Exported: time.Now().UTC(), Records: records})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offsets: %w", err)
	}
	return data, nil
}

// ExportOffsetsJSON renders records as indented JSON.
func ExportOffsetsJSON(records []*models.TrackOffsetRecord) ([]byte, error) {
	data, err := json.MarshalIndent(offsetFile{Version: offsetFileVersion, Exported: time.Now().UTC(), Records: records}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offsets: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseOffsets reads records exported by [ExportOffsetsYAML] or [ExportOffsetsJSON].
//
// JSON is a subset of YAML, so one decoder handles both.
func ParseOffsets(data []byte) ([]*models.TrackOffsetRecord, error) {
	var doc offsetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse offsets: %w", shared.ErrInvalidInput, err)
	}
	if doc.Version > offsetFileVersion {
		return nil, fmt.Errorf("%w: unsupported offsets version %d", shared.ErrInvalidInput, doc.Version)
	}

	for _, r := range doc.Records {
		if r == nil || r.TrackID == "" {
			return nil, fmt.Errorf("%w: offset record without track id", shared.ErrInvalidInput)
		}
		r.Normalize()
	}
	return doc.Records, nil
}

// WriteOffsetsExport writes records to path, choosing JSON for a .json extension and YAML otherwise.
func WriteOffsetsExport(records []*models.TrackOffsetRecord, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = ExportOffsetsJSON(records)
	} else {
		data, err = ExportOffsetsYAML(records)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write offsets file: %w", err)
	}
	return nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
