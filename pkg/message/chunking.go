package message

import "strings"

// ChunkConfig controls how reply text is split when it exceeds a
// platform's maximum message length.
type ChunkConfig struct {
	// MaxLength is the maximum number of bytes per chunk.
	// A value <= 0 means no splitting.
	MaxLength int

	// PreserveBlocks avoids splitting inside fenced code blocks (``` ... ```)
	// as long as the block stays under twice MaxLength.
	PreserveBlocks bool
}

// SplitText breaks text into chunks of at most cfg.MaxLength bytes,
// preferring line boundaries. Text that already fits is returned as a
// single chunk; empty text yields no chunks.
func SplitText(text string, cfg ChunkConfig) []string {
	if text == "" {
		return nil
	}
	if cfg.MaxLength <= 0 || len(text) <= cfg.MaxLength {
		return []string{text}
	}

	lines := strings.Split(text, "\n")

	var chunks []string
	var current strings.Builder

	inCodeBlock := false

	for _, line := range lines {
		lineWithNewline := line + "\n"

		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")

		// The flag flips after the overflow check so the closing fence
		// still counts as inside the block.
		wasInCodeBlock := inCodeBlock
		if isFence {
			inCodeBlock = !inCodeBlock
		}

		if current.Len()+len(lineWithNewline) > cfg.MaxLength {
			stillInBlock := wasInCodeBlock || (isFence && !inCodeBlock)
			if cfg.PreserveBlocks && stillInBlock && current.Len() < cfg.MaxLength*2 {
				current.WriteString(lineWithNewline)
				continue
			}

			if current.Len() > 0 {
				chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
				current.Reset()
			}

			if len(lineWithNewline) > cfg.MaxLength {
				chunks = append(chunks, forceSplit(line, cfg.MaxLength)...)
				continue
			}
		}

		current.WriteString(lineWithNewline)
	}

	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
	}

	return chunks
}

// forceSplit breaks a single long line into chunks of at most maxLen bytes
// without cutting a UTF-8 sequence in half.
func forceSplit(line string, maxLen int) []string {
	var parts []string
	for len(line) > maxLen {
		cut := maxLen
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		parts = append(parts, line[:cut])
		line = line[cut:]
	}
	if len(line) > 0 {
		parts = append(parts, line)
	}
	return parts
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
