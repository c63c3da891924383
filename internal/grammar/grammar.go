// Package grammar loads the external EBNF grammar file (spec section 4.1):
// a declarative @lexical section (keyword and operator lexeme tables) plus
// a human-readable @syntax section that is parsed only for well-formedness.
// No later stage may reference a token.Kind that the loaded grammar does
// not declare — Load enforces this as a fatal configuration error.
package grammar

import (
	"bufio"
	"embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/btrc-lang/btrc/internal/token"
)

//go:embed testdata/btrc.ebnf
var defaultFS embed.FS

// DefaultGrammarPath is the embedded fallback grammar the pipeline loads
// when its Options.GrammarPath is empty.
const DefaultGrammarPath = "testdata/btrc.ebnf"

// Info is the loaded, validated grammar: the keyword set, the operator list
// in longest-first order, and a symbolic-name -> token.Kind mapping for
// each. Later stages consult Info instead of ever spelling out a keyword or
// operator lexeme themselves.
type Info struct {
	// KeywordKind maps a keyword's literal spelling to its token.Kind.
	KeywordKind map[string]token.Kind
	// Operators is the operator lexeme list, longest-first, as declared by
	// the grammar file.
	Operators []string
	// OperatorKind maps an operator's literal spelling to its token.Kind.
	OperatorKind map[string]token.Kind
	// MaxOperatorLen is len(Operators[0]) if any, else 0. The lexer tries
	// operator lexemes from this length down to 1.
	MaxOperatorLen int
}

// IsKeyword reports whether ident spells a keyword, returning its Kind.
func (g *Info) IsKeyword(ident string) (token.Kind, bool) {
	k, ok := g.KeywordKind[ident]
	return k, ok
}

// MatchOperator returns the Kind and spelling of the longest operator lexeme
// that prefixes s, or (0, "", false) if none matches.
func (g *Info) MatchOperator(s string) (token.Kind, string, bool) {
	limit := g.MaxOperatorLen
	if limit > len(s) {
		limit = len(s)
	}
	for l := limit; l >= 1; l-- {
		cand := s[:l]
		if k, ok := g.OperatorKind[cand]; ok {
			return k, cand, true
		}
	}
	return 0, "", false
}

// Load reads and validates an EBNF grammar file at path.
func Load(path string) (*Info, error) {
	var src []byte
	var err error
	if path == "" || path == DefaultGrammarPath {
		src, err = defaultFS.ReadFile(DefaultGrammarPath)
	} else {
		src, err = readFile(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "grammar: reading %q", path)
	}
	return Parse(string(src))
}

// Parse validates and loads a grammar document already read into memory.
func Parse(src string) (*Info, error) {
	sections, err := splitSections(src)
	if err != nil {
		return nil, err
	}

	lexical, ok := sections["@lexical"]
	if !ok {
		return nil, errors.New("grammar: missing @lexical section")
	}
	if err := validateSyntaxSection(sections["@syntax"]); err != nil {
		return nil, errors.Wrap(err, "grammar: @syntax section")
	}

	keywords, err := parseTable(lexical, "keywords")
	if err != nil {
		return nil, err
	}
	operators, err := parseTable(lexical, "operators")
	if err != nil {
		return nil, err
	}

	info := &Info{
		KeywordKind:  make(map[string]token.Kind, len(keywords)),
		OperatorKind: make(map[string]token.Kind, len(operators)),
	}
	for _, e := range keywords {
		k, ok := token.ByName(e.kindName)
		if !ok {
			return nil, errors.Errorf("grammar: keyword %q maps to unknown kind %q", e.lexeme, e.kindName)
		}
		info.KeywordKind[e.lexeme] = k
	}
	opLexemes := make([]string, 0, len(operators))
	for _, e := range operators {
		k, ok := token.ByName(e.kindName)
		if !ok {
			return nil, errors.Errorf("grammar: operator %q maps to unknown kind %q", e.lexeme, e.kindName)
		}
		info.OperatorKind[e.lexeme] = k
		opLexemes = append(opLexemes, e.lexeme)
	}
	for i := 1; i < len(opLexemes); i++ {
		if len(opLexemes[i]) > len(opLexemes[i-1]) {
			return nil, errors.Errorf("grammar: operators section is not longest-first at %q after %q", opLexemes[i], opLexemes[i-1])
		}
	}
	info.Operators = opLexemes
	if len(opLexemes) > 0 {
		info.MaxOperatorLen = len(opLexemes[0])
	}

	// Contract: every keyword/operator kind referenced by the rest of the
	// compiler must be declared here.
	declared := make(map[token.Kind]bool, len(info.KeywordKind)+len(info.OperatorKind))
	for _, k := range info.KeywordKind {
		declared[k] = true
	}
	for _, k := range info.OperatorKind {
		declared[k] = true
	}
	var missing []string
	for _, k := range token.AllKeywordAndOperatorKinds() {
		if !declared[k] {
			missing = append(missing, k.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.Errorf("grammar: file does not declare required token kind(s): %s", strings.Join(missing, ", "))
	}

	return info, nil
}

type tableEntry struct {
	lexeme   string
	kindName string
}

// parseTable extracts `"lexeme" -> KIND_NAME` lines from the named block
// (`keywords { ... }` or `operators { ... }`) inside section text.
func parseTable(section, blockName string) ([]tableEntry, error) {
	idx := strings.Index(section, blockName+" {")
	if idx == -1 {
		return nil, errors.Errorf("grammar: missing %s block in @lexical section", blockName)
	}
	rest := section[idx+len(blockName+" {"):]
	// The block ends at the first line holding only "}"; a "}" inside a
	// quoted lexeme (the operator table lists "}" itself) does not end it.
	end, off := -1, 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if strings.TrimSpace(line) == "}" {
			end = off
			break
		}
		off += len(line)
	}
	if end == -1 {
		return nil, errors.Errorf("grammar: unterminated %s block", blockName)
	}
	body := rest[:end]

	var entries []tableEntry
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		arrow := strings.Index(line, "->")
		if arrow == -1 {
			return nil, errors.Errorf("grammar: malformed %s entry %q (expected \"lexeme\" -> KIND)", blockName, line)
		}
		lexPart := strings.TrimSpace(line[:arrow])
		namePart := strings.TrimSpace(line[arrow+2:])
		lexeme, err := strconv.Unquote(lexPart)
		if err != nil {
			return nil, errors.Wrapf(err, "grammar: malformed %s lexeme %q", blockName, lexPart)
		}
		entries = append(entries, tableEntry{lexeme: lexeme, kindName: namePart})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// splitSections partitions the raw grammar file into its @lexical and
// @syntax bodies, keyed by the section header including the leading '@'.
func splitSections(src string) (map[string]string, error) {
	lines := strings.Split(src, "\n")
	sections := map[string]string{}
	current := ""
	var buf strings.Builder
	flush := func() {
		if current != "" {
			sections[current] = buf.String()
		}
		buf.Reset()
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "@") {
			flush()
			current = trimmed
			continue
		}
		if current == "" {
			continue // preamble / comments before the first section
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	if len(sections) == 0 {
		return nil, errors.New("grammar: no @lexical or @syntax sections found")
	}
	return sections, nil
}

// validateSyntaxSection checks the documentation-only grammar for balanced
// grouping; it is never used to drive parsing, per spec section 4.1.
func validateSyntaxSection(section string) error {
	if section == "" {
		return nil
	}
	depth := map[rune]int{'(': 0, '{': 0, '[': 0}
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	for _, r := range section {
		switch r {
		case '(', '{', '[':
			depth[r]++
		case ')', '}', ']':
			open := pairs[r]
			depth[open]--
			if depth[open] < 0 {
				return fmt.Errorf("unbalanced %q", r)
			}
		}
	}
	for open, count := range depth {
		if count != 0 {
			return fmt.Errorf("unbalanced %q", open)
		}
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
