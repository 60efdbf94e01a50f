package ingestion

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// TextExtractor はソースドキュメントを正規化済みプレーンテキストと
// セクション境界マーカーに変換する
type TextExtractor struct{}

// NewTextExtractor は新しい TextExtractor を作成する
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract はドキュメントから本文とセクションマーカーを抽出する。
// 見出し行は本文から除去され、マーカーとして位置・テキストが記録される。
// 抽出できる本文が存在しない場合は ErrNoExtractableText を返す。
func (te *TextExtractor) Extract(doc *Document) (string, []SectionMarker, error) {
	var text string
	var err error

	switch doc.Format {
	case FormatPDF:
		text, err = extractPDFText(doc.Raw)
		if err != nil {
			return "", nil, fmt.Errorf("failed to extract PDF text: %w", err)
		}
	case FormatMarkdown:
		text = string(doc.Raw)
	case FormatHTML:
		text = htmlToText(string(doc.Raw))
	default:
		return "", nil, fmt.Errorf("unsupported source format: %q", doc.Format)
	}

	body, markers := splitSections(normalizeText(text))
	if strings.TrimSpace(body) == "" {
		return "", nil, fmt.Errorf("%s: %w", doc.SourceLabel, ErrNoExtractableText)
	}

	return body, markers, nil
}

// extractPDFText はPDFのページテキストを読み順に連結する
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// 壊れたページは読み飛ばし、残りのページを処理する
			continue
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, "\n\n"), nil
}

// htmlToText はHTMLマークアップを除去しプレーンテキスト化する。
// 見出しタグは後段のマーカー検出が拾えるよう "# " 接頭辞付きの行になる。
// エンティティはトークナイザがデコードする。
func htmlToText(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()

		case html.StartTagToken:
			name, _ := z.TagName()
			switch tag := string(name); tag {
			case "script", "style":
				skipDepth++
			case "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteString("\n\n# ")
			case "p", "div", "section", "article", "blockquote", "ul", "ol", "figure":
				b.WriteString("\n\n")
			case "li":
				b.WriteString("\n")
			case "br":
				b.WriteString("\n")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); tag {
			case "script", "style":
				if skipDepth > 0 {
					skipDepth--
				}
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "blockquote":
				b.WriteString("\n\n")
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// pageNumberPattern はPDFのページ番号行（"3" や "Page 3 of 5" など）にマッチする
var pageNumberPattern = regexp.MustCompile(`(?i)^(page\s+)?\d+(\s+of\s+\d+)?$`)

// normalizeText は制御文字とページ番号行を取り除き、
// 空白の連続を単一スペースへ畳み込む。段落区切り（空行）は保持する。
func normalizeText(text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			flush()
			continue
		}
		if pageNumberPattern.MatchString(line) {
			continue
		}
		current = append(current, line)
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

var (
	markdownHeadingPattern = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	boldHeadingPattern     = regexp.MustCompile(`^\*\*([^*]+)\*\*$`)
	capsHeadingPattern     = regexp.MustCompile(`^[A-Z][A-Z\s&/-]{2,}$`)
)

// 一般的なCVセクション見出し。プレーンテキストやPDF由来の本文では
// 書式マーカーが失われるため、名称そのもので境界を検出する。
var knownSectionHeadings = []string{
	"professional experience",
	"work experience",
	"experience",
	"technical skills",
	"core competencies",
	"skills",
	"education",
	"academic background",
	"qualifications",
	"publications & presentations",
	"publications",
	"presentations",
	"awards",
	"achievements",
	"projects",
	"key projects",
	"leadership",
	"volunteering",
	"summary",
	"profile",
}

// splitSections は本文から見出し行を抜き出し、残りを本文として連結する。
// マーカーの Offset は見出し除去後の本文内の位置を指す。
func splitSections(text string) (string, []SectionMarker) {
	var body strings.Builder
	var markers []SectionMarker

	appendParagraphBreak := func() {
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		lines := strings.Split(paragraph, "\n")
		var kept []string
		for _, line := range lines {
			if heading, ok := detectHeading(line); ok {
				// 見出し直前までの本文を確定してからマーカーを置く
				if len(kept) > 0 {
					appendParagraphBreak()
					body.WriteString(strings.Join(kept, "\n"))
					kept = nil
				}
				offset := body.Len()
				if offset > 0 {
					offset += 2 // 後続段落区切りのぶん
				}
				// 本文を挟まず連続する見出しは1つのマーカーへ結合する
				if n := len(markers); n > 0 && markers[n-1].Offset == offset {
					markers[n-1].Heading += " / " + heading
					continue
				}
				markers = append(markers, SectionMarker{Offset: offset, Heading: heading})
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) > 0 {
			appendParagraphBreak()
			body.WriteString(strings.Join(kept, "\n"))
		}
	}

	result := body.String()

	// 本文末尾を超えるマーカー位置をクランプする
	for i := range markers {
		if markers[i].Offset > len(result) {
			markers[i].Offset = len(result)
		}
	}

	return result, markers
}

// detectHeading は行が見出しかどうかを判定する
func detectHeading(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	if m := markdownHeadingPattern.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := boldHeadingPattern.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	// 既知のセクション名と一致する短い行
	lower := strings.ToLower(strings.TrimRight(line, ":"))
	for _, name := range knownSectionHeadings {
		if lower == name {
			return strings.TrimRight(line, ":"), true
		}
	}

	// 全大文字の短い行（"TECHNICAL SKILLS" のような体裁のCV向け）
	if capsHeadingPattern.MatchString(line) && len(strings.Fields(line)) <= 6 {
		return line, true
	}

	return "", false
}
