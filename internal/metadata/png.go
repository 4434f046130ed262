package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	pngstructure "github.com/dsoprea/go-png-image-structure/v2"
)

// pngKeywords are the text keys that carry the tags.
var pngKeywords = []string{"Description", "Title", "Comment"}

// writePNG replaces any Description, Title and Comment text chunks with the
// tags, keeping every other chunk untouched.
func writePNG(path, tags string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	chunks, err := parsePNG(raw)
	if err != nil {
		return err
	}

	out := make([]*pngstructure.Chunk, 0, len(chunks)+len(pngKeywords))
	for _, c := range chunks {
		if isTagTextChunk(c) {
			continue
		}
		out = append(out, c)
		if c.Type == "IHDR" {
			for _, key := range pngKeywords {
				out = append(out, textChunk(key, tags))
			}
		}
	}

	var buf bytes.Buffer
	if err := pngstructure.NewChunkSlice(out).WriteTo(&buf); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return replaceFile(path, buf.Bytes())
}

func parsePNG(raw []byte) ([]*pngstructure.Chunk, error) {
	mc, err := pngstructure.NewPngMediaParser().ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse png: %w", err)
	}
	cs, ok := mc.(*pngstructure.ChunkSlice)
	if !ok {
		return nil, errors.New("parse png: unexpected media context")
	}

	chunks := cs.Chunks()
	for _, c := range chunks {
		if !c.CheckCrc32() {
			return nil, fmt.Errorf("png chunk %s: crc mismatch", c.Type)
		}
	}
	if len(chunks) == 0 || chunks[0].Type != "IHDR" {
		return nil, errors.New("png missing IHDR")
	}
	return chunks, nil
}

func isTagTextChunk(c *pngstructure.Chunk) bool {
	switch c.Type {
	case "tEXt", "zTXt", "iTXt":
	default:
		return false
	}
	i := bytes.IndexByte(c.Data, 0)
	if i < 0 {
		return false
	}
	key := string(c.Data[:i])
	for _, k := range pngKeywords {
		if key == k {
			return true
		}
	}
	return false
}

// textChunk builds a tEXt chunk, or iTXt when the text is not plain ASCII.
func textChunk(key, text string) *pngstructure.Chunk {
	typ := "tEXt"
	data := make([]byte, 0, len(key)+5+len(text))
	data = append(data, key...)
	if isASCII(text) {
		data = append(data, 0)
	} else {
		// keyword NUL, uncompressed, empty language tag and translated keyword
		typ = "iTXt"
		data = append(data, 0, 0, 0, 0, 0)
	}
	data = append(data, text...)

	c := &pngstructure.Chunk{
		Type:   typ,
		Length: uint32(len(data)),
		Data:   data,
	}
	c.UpdateCrc32()
	return c
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
