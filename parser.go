package quizsolver

import (
	"os"
	"regexp"
	"strings"
)

// ParsedChoice is a choice as extracted from the document.
type ParsedChoice struct {
	Key              string
	Text             string
	IsVisuallyMarked bool
}

// ParsedQuestion is a question as extracted from the document, before any
// answer resolution.
type ParsedQuestion struct {
	Index            int // 1-based
	Stem             string
	Choices          []ParsedChoice
	CorrectAnswerKey string // non-empty only when exactly one choice is visually marked
	Section          string
	Source           AnswerSource
}

// ParsedDocument is the parser output for a whole upload.
type ParsedDocument struct {
	Title     string
	Questions []ParsedQuestion
}

var (
	// Question block boundaries: "(CLO d.d)", "Câu <n>:" / "Câu <n>." (a
	// stray space between C and âu is tolerated), a line-leading "<n>." /
	// "<n>)" (possibly behind HTML tags), or a section heading word.
	questionBoundaryRe = regexp.MustCompile(`(?im)(?:\(\s*CLO\s*\d+\.\d+\s*\)|C\s?âu\s*\d+\s*[:.]|^[^\S\n]*(?:<[^>]*>[^\S\n]*)*\d{1,3}\s*[.)]|^[^\S\n]*(?:<[^>]*>[^\S\n]*)*(?:Chương|Bài|Phần|Mục|CLO|Chapter|Section|Part)\s*[\d.]+)`)

	// Section headings at the head of a block.
	sectionHeadRe  = regexp.MustCompile(`(?i)^\s*((?:Chương|Bài|Phần|Mục|CLO|Chapter|Section|Part)\s*[\d.]+)`)
	romanHeadRe    = regexp.MustCompile(`^\s*([IVXLCDM]{1,5})\s*[.):]`)
	parenSectionRe = regexp.MustCompile(`(?i)\(\s*((?:CLO|Chương|Bài)\s*[\d.]+)\s*\)`)

	// Choices anchor: the first " A." in a block opens the choice list.
	choicesAnchorRe = regexp.MustCompile(`(?m)(?:^|[\s>(])(A\s*[.)])`)
	choiceMarkerRe  = regexp.MustCompile(`(?m)(?:^|[\s>(])([A-Fa-f])\s*[.)][ \t]*`)

	// Leading decoration stripped from stems.
	stemDecorRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*\(?\s*(?:Chương|Bài|Phần|Mục|CLO|Chapter|Section|Part)\s*[\d.]+\s*\)?\s*[:.\-]?\s*`),
		regexp.MustCompile(`(?i)^\s*C\s?âu\s*\d+\s*[:.]\s*`),
		regexp.MustCompile(`^\s*\d{1,3}\s*[.)]\s*`),
	}
)

const minBlockLength = 10

// DocumentParser extracts ordered questions from uploaded documents.
type DocumentParser struct {
	log *Logger
}

// NewDocumentParser creates a parser.
func NewDocumentParser(log *Logger) *DocumentParser {
	return &DocumentParser{log: log.With("component", "DocumentParser")}
}

// ParseFile reads the document at path and extracts its questions. All
// failures are parser errors: file unreadable, format broken, or zero
// questions extracted.
func (dp *DocumentParser) ParseFile(path string, docType DocumentType) (*ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParserError("failed to read document", err)
	}

	var doc *ParsedDocument
	switch docType {
	case DocumentPDF:
		text, perr := extractPDFText(data)
		if perr != nil {
			return nil, NewParserError("pdf extraction failed", perr)
		}
		doc = dp.parseText(text, false)

	case DocumentDOCX:
		htmlText, herr := extractDOCXHTML(data)
		if herr == nil {
			doc = dp.parseText(htmlText, true)
		}
		if doc == nil || len(doc.Questions) == 0 {
			// style-aware path found nothing; retry on raw text
			text, terr := extractDOCXText(data)
			if terr != nil {
				if herr != nil {
					return nil, NewParserError("docx extraction failed", herr)
				}
			} else {
				doc = dp.parseText(text, false)
			}
		}

	default:
		doc = dp.parseText(normalizeLineEndings(string(data)), false)
	}

	if doc == nil || len(doc.Questions) == 0 {
		return nil, NewParserError("no questions extracted from document", nil)
	}
	dp.log.Info("document parsed", "questions", len(doc.Questions), "title", doc.Title)
	return doc, nil
}

// parseText segments the text (or HTML) into question blocks, tracks the
// sticky current section, and extracts a question from each block. Title is
// empty when the preamble holds no usable line.
func (dp *DocumentParser) parseText(text string, htmlMode bool) *ParsedDocument {
	preamble, blocks := splitQuestionBlocks(text)

	title := ""
	if htmlMode {
		preamble = stripHTMLTags(preamble)
	}
	if line := firstLine(preamble); len(line) >= 4 && len(line) <= 150 {
		title = line
	}

	doc := &ParsedDocument{Title: title}
	currentSection := DefaultSection

	for _, block := range blocks {
		plain := block
		if htmlMode {
			plain = stripHTMLTags(block)
		}

		// sticky section: heading at the head of the block wins, then a
		// parenthesized marker anywhere in it
		if m := sectionHeadRe.FindStringSubmatch(plain); m != nil {
			currentSection = SanitizeSection(m[1])
		} else if m := romanHeadRe.FindStringSubmatch(plain); m != nil {
			currentSection = SanitizeSection(m[1])
		} else if m := parenSectionRe.FindStringSubmatch(plain); m != nil {
			currentSection = SanitizeSection(m[1])
		}

		if len(strings.TrimSpace(plain)) < minBlockLength {
			continue
		}

		q, ok := dp.parseQuestionBlock(block, htmlMode)
		if !ok {
			continue
		}
		q.Index = len(doc.Questions) + 1
		q.Section = currentSection
		doc.Questions = append(doc.Questions, q)
	}
	return doc
}

// splitQuestionBlocks cuts the text at question boundaries. The text before
// the first boundary is returned separately as preamble.
func splitQuestionBlocks(text string) (string, []string) {
	locs := questionBoundaryRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, nil
	}
	preamble := text[:locs[0][0]]
	blocks := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks = append(blocks, text[loc[0]:end])
	}
	return preamble, blocks
}

// parseQuestionBlock extracts one question from a block: the text before the
// first " A." is the stem, the rest is scanned for choices. Blocks without at
// least two choices and a non-empty stem are discarded.
func (dp *DocumentParser) parseQuestionBlock(block string, htmlMode bool) (ParsedQuestion, bool) {
	var q ParsedQuestion

	anchor := choicesAnchorRe.FindStringSubmatchIndex(block)
	if anchor == nil {
		return q, false
	}
	stemRaw := block[:anchor[2]]
	choicesPart := block[anchor[2]:]

	if htmlMode {
		stemRaw = stripHTMLTags(stemRaw)
	}
	q.Stem = cleanStem(stemRaw)
	if q.Stem == "" {
		return q, false
	}

	q.Choices = scanChoices(choicesPart, htmlMode)
	if len(q.Choices) < 2 {
		return q, false
	}
	if len(q.Choices) > 6 {
		q.Choices = q.Choices[:6]
	}

	q.Source = SourceAIGenerated
	if htmlMode {
		marked := ""
		count := 0
		for _, c := range q.Choices {
			if c.IsVisuallyMarked {
				marked = c.Key
				count++
			}
		}
		if count == 1 {
			q.CorrectAnswerKey = marked
			q.Source = SourceStyleDetected
		}
	}
	return q, true
}

// scanChoices walks the choice markers in order, accepting only the next
// expected key (A, then B, ...) so keys come out contiguous from A. Stray
// marker matches are folded into the preceding choice's text.
func scanChoices(part string, htmlMode bool) []ParsedChoice {
	markers := choiceMarkerRe.FindAllStringSubmatchIndex(part, -1)
	if len(markers) == 0 {
		return nil
	}

	// A marker's raw span starts before any formatting tags hugging it, so a
	// <strong> that wraps "B." counts toward choice B, not the previous one.
	starts := make([]int, len(markers))
	for i, m := range markers {
		starts[i] = openingTagStart(part, m[2])
	}

	type span struct {
		key       string
		rawStart  int // includes tags opening at the marker
		textStart int // text segment following the marker
		end       int
	}
	var spans []span
	expected := byte('A')
	for i, m := range markers {
		key := strings.ToUpper(part[m[2]:m[3]])
		segEnd := len(part)
		if i+1 < len(markers) {
			segEnd = starts[i+1]
		}
		if key[0] == expected {
			spans = append(spans, span{key: key, rawStart: starts[i], textStart: m[1], end: segEnd})
			expected++
		} else if len(spans) > 0 {
			// not the next key: the matched text belongs to the previous choice
			spans[len(spans)-1].end = segEnd
		}
	}

	choices := make([]ParsedChoice, 0, len(spans))
	for _, sp := range spans {
		text := part[sp.textStart:sp.end]
		if htmlMode {
			text = stripHTMLTags(text)
		}
		text = collapseWhitespace(text)
		if text == "" {
			continue
		}
		choices = append(choices, ParsedChoice{
			Key:              sp.key,
			Text:             text,
			IsVisuallyMarked: htmlMode && choiceIsMarked(part[sp.rawStart:sp.end]),
		})
	}
	return choices
}

// openingTagStart walks back from pos over whitespace and opening tags.
// Closing tags stay with the preceding text.
func openingTagStart(s string, pos int) int {
	for {
		trimmed := strings.TrimRight(s[:pos], " \t\r\n(")
		if !strings.HasSuffix(trimmed, ">") {
			return pos
		}
		j := strings.LastIndex(trimmed, "<")
		if j < 0 || strings.HasPrefix(trimmed[j:], "</") {
			return pos
		}
		pos = j
	}
}

// choiceIsMarked reports whether a choice's raw HTML carries a visual answer
// mark: a style-mapped span, an emphasis tag, or a literal check mark.
func choiceIsMarked(rawHTML string) bool {
	s := strings.ToLower(rawHTML)
	for _, needle := range []string{"marked-run", "<strong", "<b>", "<b ", "<u>", "<u ", "<em", "<i>", "<i "} {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return strings.Contains(rawHTML, "✓")
}

// cleanStem collapses whitespace and strips any leading section or numbering
// decoration, repeatedly, since decorations stack ("(CLO 1.2) Câu 3: ...").
func cleanStem(s string) string {
	s = collapseWhitespace(s)
	for changed := true; changed; {
		changed = false
		for _, re := range stemDecorRes {
			if ns := re.ReplaceAllString(s, ""); ns != s {
				s = ns
				changed = true
			}
		}
	}
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = collapseWhitespace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
