package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMarkdownRecordsHeadingsAsMarkers(t *testing.T) {
	raw := `# Professional Experience

Led the backend team at Acme building search infrastructure.

## Education

MSc in Computer Science.`

	body, markers, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "cv",
		Format:      FormatMarkdown,
		Raw:         []byte(raw),
	})
	require.NoError(t, err)

	// 見出し行は本文から除去される
	assert.NotContains(t, body, "#")
	assert.NotContains(t, body, "Professional Experience")
	assert.Contains(t, body, "Led the backend team")
	assert.Contains(t, body, "MSc in Computer Science.")

	require.Len(t, markers, 2)
	assert.Equal(t, "Professional Experience", markers[0].Heading)
	assert.Equal(t, "Education", markers[1].Heading)
	assert.Equal(t, 0, markers[0].Offset)
	assert.LessOrEqual(t, markers[1].Offset, len(body))
}

func TestExtractJoinsConsecutiveHeadings(t *testing.T) {
	raw := `## Awards
## Publications

Best paper award and two journal articles.`

	body, markers, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "cv",
		Format:      FormatMarkdown,
		Raw:         []byte(raw),
	})
	require.NoError(t, err)

	require.Len(t, markers, 1)
	assert.Equal(t, "Awards / Publications", markers[0].Heading)
	assert.Equal(t, 0, markers[0].Offset)
	assert.Contains(t, body, "Best paper award")
}

func TestExtractMarkerOffsetsSliceBodyCorrectly(t *testing.T) {
	raw := `Intro paragraph without heading here.

# Skills

Go, PostgreSQL, distributed systems engineering work.`

	body, markers, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "cv",
		Format:      FormatMarkdown,
		Raw:         []byte(raw),
	})
	require.NoError(t, err)

	require.Len(t, markers, 1)
	section := body[markers[0].Offset:]
	assert.Equal(t, "Go, PostgreSQL, distributed systems engineering work.", strings.TrimSpace(section))
}

func TestExtractDetectsCapsAndKnownHeadings(t *testing.T) {
	raw := `TECHNICAL SKILLS

Go and PostgreSQL.

Education

BSc in Mathematics.`

	_, markers, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "cv",
		Format:      FormatMarkdown,
		Raw:         []byte(raw),
	})
	require.NoError(t, err)

	require.Len(t, markers, 2)
	assert.Equal(t, "TECHNICAL SKILLS", markers[0].Heading)
	assert.Equal(t, "Education", markers[1].Heading)
}

func TestExtractHTMLStripsMarkupAndKeepsHeadings(t *testing.T) {
	raw := `<html><head><style>body { color: red; }</style></head><body>
<h1>On Go Concurrency</h1>
<p>Goroutines are cheap &amp; easy to start.</p>
<script>alert("hi")</script>
<p>Channels coordinate them.</p>
</body></html>`

	body, markers, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "medium",
		Format:      FormatHTML,
		Raw:         []byte(raw),
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Goroutines are cheap & easy to start.")
	assert.Contains(t, body, "Channels coordinate them.")
	assert.NotContains(t, body, "alert")
	assert.NotContains(t, body, "color: red")

	require.Len(t, markers, 1)
	assert.Equal(t, "On Go Concurrency", markers[0].Heading)
}

func TestExtractEmptyDocumentReturnsError(t *testing.T) {
	_, _, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "cv",
		Format:      FormatMarkdown,
		Raw:         []byte("   \n\n  \t "),
	})
	assert.ErrorIs(t, err, ErrNoExtractableText)
}

func TestExtractRejectsUnknownFormat(t *testing.T) {
	_, _, err := NewTextExtractor().Extract(&Document{
		SourceLabel: "cv",
		Format:      SourceFormat("docx"),
		Raw:         []byte("text"),
	})
	assert.ErrorContains(t, err, "unsupported source format")
}

func TestNormalizeTextDropsPageNumbersAndControlChars(t *testing.T) {
	input := "First line\u0000 here\n3\nPage 4 of 10\nSecond   line\n\nNext paragraph"

	got := normalizeText(input)

	assert.NotContains(t, got, "\u0000")
	assert.NotContains(t, got, "Page 4 of 10")
	assert.Contains(t, got, "First line here\nSecond line")
	assert.Contains(t, got, "\n\nNext paragraph")
	// 単独の数字行はページ番号として除去される
	for _, line := range strings.Split(got, "\n") {
		assert.NotEqual(t, "3", strings.TrimSpace(line))
	}
}

func TestDetectHeading(t *testing.T) {
	tests := []struct {
		line    string
		heading string
		ok      bool
	}{
		{"# Experience", "Experience", true},
		{"### Work History ###", "Work History", true},
		{"**Skills**", "Skills", true},
		{"EDUCATION", "EDUCATION", true},
		{"Education:", "Education", true},
		{"projects", "projects", true},
		{"I worked at Acme for five years.", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		heading, ok := detectHeading(tt.line)
		assert.Equal(t, tt.ok, ok, "line %q", tt.line)
		if tt.ok {
			assert.Equal(t, tt.heading, heading, "line %q", tt.line)
		}
	}
}
