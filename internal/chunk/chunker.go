// Package chunk splits source files into content-addressed chunks for
// indexing. Chunks partition the file byte-for-byte, respect rune
// boundaries, and classify their region as code, comment, or docstring.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// ChunkType classifies a chunk's dominant content.
type ChunkType string

const (
	TypeCode      ChunkType = "code"
	TypeComment   ChunkType = "comment"
	TypeDocstring ChunkType = "docstring"
)

// Policy bounds chunk sizes in bytes.
type Policy struct {
	MinBytes int
	MaxBytes int
}

// DefaultPolicy is the standard size window.
var DefaultPolicy = Policy{MinBytes: 512, MaxBytes: 4096}

// Chunk is one contiguous slice of a file.
type Chunk struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Type      ChunkType `json:"type"`
	StartByte int       `json:"start"`
	EndByte   int       `json:"end"`
	StartLine int       `json:"lineStart"` // 1-indexed
	EndLine   int       `json:"lineEnd"`   // inclusive
	Language  string    `json:"language"`
}

// ChunkID is the SHA-256 of the content with trailing whitespace
// stripped per line, so formatting-only edits keep chunk identity.
func ChunkID(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

type lineInfo struct {
	text      string // includes trailing newline if present
	start     int    // byte offset
	isComment bool
}

// File splits one file into chunks under the given policy.
func File(path string, content []byte, policy Policy) []*Chunk {
	if len(content) == 0 {
		return nil
	}
	if policy.MinBytes <= 0 || policy.MaxBytes <= 0 || policy.MinBytes > policy.MaxBytes {
		policy = DefaultPolicy
	}

	lang := languageFor(path)
	lines := classifyLines(string(content), lang)
	regions := groupRegions(lines)

	var chunks []*Chunk
	sawCode := false
	for _, region := range regions {
		chunkType := TypeCode
		if region.isComment {
			if sawCode {
				chunkType = TypeComment
			} else {
				// Leading comment block before any symbol.
				chunkType = TypeDocstring
			}
		} else {
			sawCode = true
		}
		chunks = append(chunks, splitRegion(region, chunkType, lang.Name, policy)...)
	}
	return chunks
}

type region struct {
	lines     []lineInfo
	isComment bool
	startLine int // 1-indexed
}

func classifyLines(content string, lang language) []lineInfo {
	var lines []lineInfo
	inBlock := false
	offset := 0
	for offset < len(content) {
		end := strings.IndexByte(content[offset:], '\n')
		var text string
		if end < 0 {
			text = content[offset:]
		} else {
			text = content[offset : offset+end+1]
		}

		trimmed := strings.TrimSpace(text)
		isComment := false
		switch {
		case inBlock:
			isComment = true
			if lang.BlockEnd != "" && strings.Contains(trimmed, lang.BlockEnd) {
				inBlock = false
			}
		case lang.BlockStart != "" && strings.HasPrefix(trimmed, lang.BlockStart):
			isComment = true
			rest := trimmed[len(lang.BlockStart):]
			if lang.BlockEnd == "" || !strings.Contains(rest, lang.BlockEnd) {
				inBlock = true
			}
		case lang.LineMarker != "" && strings.HasPrefix(trimmed, lang.LineMarker):
			isComment = true
		case trimmed == "":
			// Blank lines join the preceding region.
			if len(lines) > 0 {
				isComment = lines[len(lines)-1].isComment
			}
		}

		lines = append(lines, lineInfo{text: text, start: offset, isComment: isComment})
		offset += len(text)
	}
	return lines
}

func groupRegions(lines []lineInfo) []region {
	var regions []region
	for i, line := range lines {
		if len(regions) == 0 || regions[len(regions)-1].isComment != line.isComment {
			regions = append(regions, region{isComment: line.isComment, startLine: i + 1})
		}
		r := &regions[len(regions)-1]
		r.lines = append(r.lines, line)
	}
	return regions
}

// splitRegion packs region lines into chunks within the size window.
// A line longer than MaxBytes is cut at rune boundaries.
func splitRegion(r region, chunkType ChunkType, langName string, policy Policy) []*Chunk {
	var chunks []*Chunk

	var buf strings.Builder
	bufStart := 0
	bufStartLine := 0

	flush := func(endLine int) {
		if buf.Len() == 0 {
			return
		}
		content := buf.String()
		chunks = append(chunks, &Chunk{
			ID:        ChunkID(content),
			Content:   content,
			Type:      chunkType,
			StartByte: bufStart,
			EndByte:   bufStart + len(content),
			StartLine: bufStartLine,
			EndLine:   endLine,
			Language:  langName,
		})
		buf.Reset()
	}

	for i, line := range r.lines {
		lineNo := r.startLine + i

		if len(line.text) > policy.MaxBytes {
			flush(lineNo - 1)
			for _, piece := range splitLongLine(line.text, policy.MaxBytes) {
				start := line.start + piece.offset
				chunks = append(chunks, &Chunk{
					ID:        ChunkID(piece.text),
					Content:   piece.text,
					Type:      chunkType,
					StartByte: start,
					EndByte:   start + len(piece.text),
					StartLine: lineNo,
					EndLine:   lineNo,
					Language:  langName,
				})
			}
			continue
		}

		if buf.Len() > 0 && buf.Len()+len(line.text) > policy.MaxBytes {
			flush(lineNo - 1)
		}
		if buf.Len() == 0 {
			bufStart = line.start
			bufStartLine = lineNo
		}
		buf.WriteString(line.text)

		if buf.Len() >= policy.MinBytes && i < len(r.lines)-1 &&
			buf.Len()+len(r.lines[i+1].text) > policy.MaxBytes {
			flush(lineNo)
		}
	}
	flush(r.startLine + len(r.lines) - 1)
	return chunks
}

type linePiece struct {
	text   string
	offset int
}

// splitLongLine cuts at the largest rune boundary not exceeding max.
func splitLongLine(line string, max int) []linePiece {
	var pieces []linePiece
	offset := 0
	for len(line) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		pieces = append(pieces, linePiece{text: line[:cut], offset: offset})
		offset += cut
		line = line[cut:]
	}
	if len(line) > 0 {
		pieces = append(pieces, linePiece{text: line, offset: offset})
	}
	return pieces
}
