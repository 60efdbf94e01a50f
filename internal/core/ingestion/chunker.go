package ingestion

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultTargetWords はチャンクの目標語数
	DefaultTargetWords = 100
	// DefaultMaxWords はチャンクの最大語数
	DefaultMaxWords = 150
	// DefaultMinWords はチャンクの最小語数（最終チャンクを除く）
	DefaultMinWords = 15
)

// ChunkerConfig はチャンク分割のパラメータ
type ChunkerConfig struct {
	TargetWords int
	MaxWords    int
	MinWords    int
}

// DefaultChunkerConfig はデフォルトのチャンク設定を返す
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		TargetWords: DefaultTargetWords,
		MaxWords:    DefaultMaxWords,
		MinWords:    DefaultMinWords,
	}
}

// BlogChunkerConfig はブログ記事向けのチャンク設定を返す。
// 記事は散文なのでCVより大きめの断片が検索品質に効く。
func BlogChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		TargetWords: 200,
		MaxWords:    400,
		MinWords:    50,
	}
}

// RepoChunkerConfig はリポジトリメタデータ向けのチャンク設定を返す
func RepoChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		TargetWords: 150,
		MaxWords:    200,
		MinWords:    10,
	}
}

// Chunker は正規化済み本文とセクションマーカーから
// サイズ制約を満たすチャンク列を生成する。
// 同一入力に対して決定的であり、再実行は同じ ID・テキスト・順序を生成する。
type Chunker struct {
	config *ChunkerConfig
}

// NewChunker は新しい Chunker を作成する
func NewChunker(config *ChunkerConfig) *Chunker {
	if config == nil {
		config = DefaultChunkerConfig()
	}
	return &Chunker{config: config}
}

// section はマーカーで区切られたチャンク化候補
type section struct {
	heading string
	text    string
}

// ChunkDocument は本文をチャンク列に変換する。
// セクション境界で分割し、大きすぎるセクションは段落単位で詰め直し、
// 小さすぎるセクションは次セクションへ統合する（最終チャンクのみ
// min_words 未満を許容する）。チャンクを1件も生成できない場合は
// エラーではなく空スライスを返す（呼び出し側が警告として扱う）。
func (c *Chunker) ChunkDocument(doc *Document, body string, markers []SectionMarker) []*Chunk {
	sections := buildSections(body, markers)

	type piece struct {
		heading string
		text    string
	}

	var pieces []piece
	carryHeading := ""
	carryText := ""

	flushCarry := func(s *section) {
		if carryText == "" {
			return
		}
		s.text = carryText + "\n\n" + s.text
		if carryHeading != "" && s.heading != "" {
			s.heading = carryHeading + " / " + s.heading
		} else if s.heading == "" {
			s.heading = carryHeading
		}
		carryHeading = ""
		carryText = ""
	}

	for i := range sections {
		sec := sections[i]
		flushCarry(&sec)

		words := countWords(sec.text)
		if words == 0 {
			continue
		}

		last := i == len(sections)-1
		if words < c.config.MinWords && !last {
			// 小さすぎるセクションは次セクションへ持ち越す
			carryHeading = sec.heading
			carryText = sec.text
			continue
		}

		if words <= c.config.MaxWords {
			pieces = append(pieces, piece{heading: sec.heading, text: strings.TrimSpace(sec.text)})
			continue
		}

		// max_words 超過: 段落単位で target_words まで貪欲に詰める
		for part, text := range c.packParagraphs(sec.text) {
			heading := sec.heading
			if part > 0 && heading != "" {
				heading = fmt.Sprintf("%s (Part %d)", sec.heading, part+1)
			}
			pieces = append(pieces, piece{heading: heading, text: text})
		}
	}

	// 末尾に持ち越しが残った場合は最終チャンクとしてそのまま出力する
	if strings.TrimSpace(carryText) != "" {
		pieces = append(pieces, piece{heading: carryHeading, text: strings.TrimSpace(carryText)})
	}

	chunks := make([]*Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p.text) == "" {
			continue
		}

		chunkType := doc.Category
		if chunkType == "" {
			chunkType = ClassifyHeading(p.heading)
		}

		index := len(chunks)
		chunks = append(chunks, &Chunk{
			ID:        ChunkID(doc.SourceLabel, index),
			Index:     index,
			Text:      p.text,
			Source:    doc.SourceLabel,
			Heading:   p.heading,
			Type:      chunkType,
			WordCount: countWords(p.text),
			Metadata:  chunkMetadata(doc),
		})
	}

	return chunks
}

// packParagraphs は段落境界で貪欲にチャンクを詰める。
// 蓄積が min_words に達するまでは段落を統合し続け、達した後は次の段落を
// 足すと target_words を超える時点で新しいチャンクを開始する。
// 単独で max_words を超える段落は語境界で強制分割する。
// セクション途中に min_words 未満の断片は残さない。
func (c *Chunker) packParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if countWords(p) > c.config.MaxWords {
			paragraphs = append(paragraphs, splitByWords(p, c.config.TargetWords)...)
		} else {
			paragraphs = append(paragraphs, p)
		}
	}

	var packed []string
	current := ""
	for _, p := range paragraphs {
		if current == "" {
			current = p
			continue
		}
		words := countWords(current)
		if words >= c.config.MinWords && words+countWords(p) > c.config.TargetWords {
			packed = append(packed, current)
			current = p
			continue
		}
		current = current + "\n\n" + p
		for countWords(current) > c.config.MaxWords {
			fields := strings.Fields(current)
			packed = append(packed, strings.Join(fields[:c.config.TargetWords], " "))
			current = strings.Join(fields[c.config.TargetWords:], " ")
		}
	}
	if current != "" {
		packed = append(packed, current)
	}

	return c.rebalanceTail(packed)
}

// rebalanceTail は末尾の断片が min_words を下回る場合に直前の断片へ
// 統合する。統合すると max_words を超えるときは語境界で配分し直し、
// 末尾に min_words 語を残す
func (c *Chunker) rebalanceTail(packed []string) []string {
	if len(packed) < 2 {
		return packed
	}
	last := packed[len(packed)-1]
	if countWords(last) >= c.config.MinWords {
		return packed
	}

	prev := packed[len(packed)-2]
	if countWords(prev)+countWords(last) <= c.config.MaxWords {
		return append(packed[:len(packed)-2], prev+"\n\n"+last)
	}

	fields := append(strings.Fields(prev), strings.Fields(last)...)
	cut := len(fields) - c.config.MinWords
	return append(packed[:len(packed)-2],
		strings.Join(fields[:cut], " "),
		strings.Join(fields[cut:], " "))
}

// splitByWords は1段落を語境界で size 語ずつに分割する
func splitByWords(text string, size int) []string {
	words := strings.Fields(text)
	var parts []string
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[start:end], " "))
	}
	return parts
}

// buildSections はマーカー位置で本文をセクションへ切り出す。
// 最初のマーカーより前の本文は見出しなしセクションになる。
func buildSections(body string, markers []SectionMarker) []section {
	sorted := make([]SectionMarker, len(markers))
	copy(sorted, markers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var sections []section

	appendSection := func(heading, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		sections = append(sections, section{heading: heading, text: strings.TrimSpace(text)})
	}

	prevOffset := 0
	prevHeading := ""
	for _, m := range sorted {
		if m.Offset > prevOffset {
			appendSection(prevHeading, body[prevOffset:m.Offset])
		}
		prevOffset = m.Offset
		prevHeading = m.Heading
	}
	if prevOffset < len(body) {
		appendSection(prevHeading, body[prevOffset:])
	}

	return sections
}

// countWords は空白区切りの語数を返す
func countWords(text string) int {
	return len(strings.Fields(text))
}

// chunkMetadata はドキュメント共通のチャンクメタデータを組み立てる
func chunkMetadata(doc *Document) map[string]string {
	meta := map[string]string{
		"processing_method": "section_chunker",
		"source_format":     string(doc.Format),
	}
	if doc.Filename != "" {
		meta["filename"] = doc.Filename
	}
	if doc.Title != "" {
		meta["title"] = doc.Title
	}
	if doc.URL != "" {
		meta["url"] = doc.URL
	}
	return meta
}

// 見出しキーワードからチャンクタイプへの対応表。
// 部分一致で評価されるため、具体的な語を先に並べる。
var headingTaxonomy = []struct {
	keyword string
	kind    ChunkType
}{
	{"experience", ChunkTypeExperience},
	{"employment", ChunkTypeExperience},
	{"career", ChunkTypeExperience},
	{"work history", ChunkTypeExperience},
	{"education", ChunkTypeEducation},
	{"degree", ChunkTypeEducation},
	{"academic", ChunkTypeEducation},
	{"qualification", ChunkTypeEducation},
	{"university", ChunkTypeEducation},
	{"skill", ChunkTypeSkills},
	{"competenc", ChunkTypeSkills},
	{"technolog", ChunkTypeSkills},
	{"award", ChunkTypeAchievement},
	{"achievement", ChunkTypeAchievement},
	{"publication", ChunkTypeAchievement},
	{"presentation", ChunkTypeAchievement},
}

// ClassifyHeading は見出しテキストをチャンクタイプへ分類する。
// どのキーワードにも一致しない場合は general を返す。
func ClassifyHeading(heading string) ChunkType {
	lower := strings.ToLower(heading)
	for _, entry := range headingTaxonomy {
		if strings.Contains(lower, entry.keyword) {
			return entry.kind
		}
	}
	return ChunkTypeGeneral
}
