package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_KeepsSentencesIntact(t *testing.T) {
	p := &Processor{chunkSize: 80, chunkOverlap: 0}
	text := "The scheduler assigns goroutines to threads. Channels synchronize them. Buffered channels decouple sender and receiver. Select waits on several channels at once."

	chunks := p.ChunkText(text)

	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 170, "sentences stay whole even when one overflows the target")
		assert.False(t, strings.HasPrefix(chunk, " "))
	}
	joined := strings.Join(chunks, " ")
	assert.Contains(t, joined, "Select waits on several channels at once.")
}

func TestChunkText_OverlapCarriesTailSentences(t *testing.T) {
	p := &Processor{chunkSize: 60, chunkOverlap: 40}
	text := "First sentence here. Second sentence follows. Third sentence closes."

	chunks := p.ChunkText(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	// The sentence that ends one chunk reappears at the start of the next.
	for i := 1; i < len(chunks); i++ {
		prevLast := lastSentence(chunks[i-1])
		assert.True(t, strings.HasPrefix(chunks[i], prevLast),
			"chunk %d should start with the previous chunk's tail", i)
	}
}

func TestChunkText_SingleOversizedSentenceBecomesOneChunk(t *testing.T) {
	p := &Processor{chunkSize: 20, chunkOverlap: 0}
	text := "This one sentence is far longer than the configured chunk size but must not be split."

	chunks := p.ChunkText(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkText_EmptyInput(t *testing.T) {
	p := &Processor{chunkSize: 100, chunkOverlap: 10}

	assert.Nil(t, p.ChunkText(""))
	assert.Nil(t, p.ChunkText("   "))
}

func TestCleanHTMLStripsBoilerplate(t *testing.T) {
	p := &Processor{}
	html := `<html><head><title>Guide</title><script>alert(1)</script></head>
	<body><nav>menu</nav><p>Useful content here.</p><footer>copyright</footer></body></html>`

	text := normalizeWhitespace(p.cleanHTML(html))

	assert.Contains(t, text, "Useful content here.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "copyright")
}

func TestExtractTitle(t *testing.T) {
	p := &Processor{}

	html := `<html><head><title>Deployment Guide</title></head><body><p>x</p></body></html>`
	assert.Equal(t, "Deployment Guide", p.extractTitle(html, "https://example.com/guide"))

	assert.Equal(t, "readme.txt", p.extractTitle("plain text", "/docs/readme.txt"))
	assert.Equal(t, "Untitled", p.extractTitle("plain text", ""))
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, looksLikeHTML("<html><body>x</body></html>"))
	assert.True(t, looksLikeHTML("intro <p>paragraph</p>"))
	assert.False(t, looksLikeHTML("just plain text with < and >"))
}

func lastSentence(chunk string) string {
	idx := strings.LastIndex(chunk[:len(chunk)-1], ". ")
	if idx < 0 {
		return chunk
	}
	return chunk[idx+2:]
}
