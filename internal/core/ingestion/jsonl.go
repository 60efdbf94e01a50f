package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// WriteChunksJSONL はチャンクを行区切りJSONとして書き出す（1行1レコード）
func WriteChunksJSONL(w io.Writer, chunks []*Chunk) error {
	enc := json.NewEncoder(w)
	for _, chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			return fmt.Errorf("failed to encode chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

// ReadChunksJSONL は行区切りJSONからチャンクを読み込む。
// 空行は読み飛ばす。不正な行は行番号付きのエラーになる。
func ReadChunksJSONL(r io.Reader) ([]*Chunk, error) {
	var chunks []*Chunk

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("invalid chunk record at line %d: %w", lineNo, err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk records: %w", err)
	}

	return chunks, nil
}
