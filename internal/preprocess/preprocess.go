// Package preprocess implements the textual-inclusion pass that runs before
// the Lexer: it inlines "#include" files and expands "#define" macros,
// generalizing the teacher compiler's Preprocess/preprocessRecursive
// (recursive #include with cycle detection) and applyDefines (single-pass
// substitution that skips string/char literals) to also resolve include
// paths relative to a search path list rather than only the including
// file's directory.
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/btrc-lang/btrc/internal/pathutil"
)

// Macro is a defined object-like or function-like macro.
type Macro struct {
	Args []string // nil for an object-like macro
	Body string
}

// Options configures a preprocessing pass.
type Options struct {
	// SearchPaths are tried, in order, after the including file's own
	// directory, for an unresolved #include target.
	SearchPaths []string
}

// Run preprocesses src, whose path is baseFile, and returns the fully
// inlined text ready for the Lexer.
func Run(src, baseFile string, opts Options) (string, error) {
	_, baseDir, err := pathutil.Resolve(baseFile)
	if err != nil {
		return "", errors.Wrapf(err, "preprocess: resolving %q", baseFile)
	}
	defines := make(map[string]Macro)
	return recurse(src, baseDir, opts, map[string]bool{}, map[string]bool{}, defines)
}

func recurse(src, baseDir string, opts Options, stack, seen map[string]bool, defines map[string]Macro) (string, error) {
	var out strings.Builder
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#define"):
			if err := handleDefine(trimmed, defines); err != nil {
				return "", err
			}
			out.WriteString("\n")

		case strings.HasPrefix(trimmed, "#include"):
			expanded, err := handleInclude(trimmed, baseDir, opts, stack, seen, defines)
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)

		default:
			out.WriteString(applyDefines(line, defines))
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

func handleDefine(trimmed string, defines map[string]Macro) error {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#define"))
	if rest == "" {
		return nil
	}
	nameEnd := 0
	for nameEnd < len(rest) {
		r := rest[nameEnd]
		if r == ' ' || r == '\t' || r == '(' {
			break
		}
		nameEnd++
	}
	name := rest[:nameEnd]
	rest = rest[nameEnd:]

	var args []string
	if len(rest) > 0 && rest[0] == '(' {
		closeParen := strings.Index(rest, ")")
		if closeParen == -1 {
			return errors.Errorf("preprocess: unterminated macro parameter list in %q", trimmed)
		}
		argStr := rest[1:closeParen]
		if strings.TrimSpace(argStr) != "" {
			for _, arg := range strings.Split(argStr, ",") {
				args = append(args, strings.TrimSpace(arg))
			}
		}
		rest = rest[closeParen+1:]
	}

	value := strings.TrimSpace(rest)
	if len(args) == 0 {
		value = applyDefines(value, defines)
	}
	defines[name] = Macro{Args: args, Body: value}
	return nil
}

func handleInclude(trimmed, baseDir string, opts Options, stack, seen map[string]bool, defines map[string]Macro) (string, error) {
	parts := strings.SplitN(trimmed, "\"", 3)
	if len(parts) < 3 {
		return "", errors.Errorf("preprocess: invalid include directive: %s", trimmed)
	}
	filename := parts[1]

	fullPath, err := resolveInclude(filename, baseDir, opts.SearchPaths)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}

	if stack[absPath] {
		return "", errors.Errorf("preprocess: circular include detected: %s", filename)
	}
	if seen[absPath] {
		return "", nil
	}
	seen[absPath] = true

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return "", errors.Wrapf(err, "preprocess: reading included file %q (resolved to %q)", filename, fullPath)
	}

	newStack := make(map[string]bool, len(stack)+1)
	for k, v := range stack {
		newStack[k] = v
	}
	newStack[absPath] = true

	expanded, err := recurse(string(content), filepath.Dir(fullPath), opts, newStack, seen, defines)
	if err != nil {
		return "", err
	}
	return expanded + "\n", nil
}

func resolveInclude(filename, baseDir string, searchPaths []string) (string, error) {
	candidate := filepath.Join(baseDir, filename)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	for _, dir := range searchPaths {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if abs, err := filepath.Abs(filename); err == nil {
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
	}
	return "", fmt.Errorf("preprocess: cannot find included file %q from %q", filename, baseDir)
}

// applyDefines substitutes every macro invocation in input at word
// boundaries, skipping the interior of string and char literals so a
// literal never accidentally matches a macro name.
func applyDefines(input string, defines map[string]Macro) string {
	if len(defines) == 0 {
		return input
	}
	var sb strings.Builder
	n := len(input)
	i := 0
	for i < n {
		switch input[i] {
		case '"':
			i = copyLiteral(input, i, '"', &sb)
		case '\'':
			i = copyLiteral(input, i, '\'', &sb)
		default:
			if isIdentStart(input[i]) {
				j := i
				for j < n && isIdentPart(input[j]) {
					j++
				}
				name := input[i:j]
				if m, ok := defines[name]; ok {
					sb.WriteString(expandMacro(input, &j, name, m, defines))
					i = j
					continue
				}
				sb.WriteString(name)
				i = j
			} else {
				sb.WriteByte(input[i])
				i++
			}
		}
	}
	return sb.String()
}

func copyLiteral(input string, i int, quote byte, sb *strings.Builder) int {
	n := len(input)
	sb.WriteByte(input[i])
	i++
	for i < n {
		ch := input[i]
		sb.WriteByte(ch)
		i++
		if ch == '\\' {
			if i < n {
				sb.WriteByte(input[i])
				i++
			}
		} else if ch == quote {
			break
		}
	}
	return i
}

// expandMacro expands the invocation of m starting right after its name
// (position *j points just past the macro name in input). For a
// function-like macro it also consumes the "(args)" call syntax.
func expandMacro(input string, j *int, name string, m Macro, defines map[string]Macro) string {
	if m.Args == nil {
		return m.Body
	}
	n := len(input)
	k := *j
	for k < n && (input[k] == ' ' || input[k] == '\t') {
		k++
	}
	if k >= n || input[k] != '(' {
		// Function-like macro referenced without a call: leave verbatim.
		return name
	}
	depth := 0
	start := k
	for k < n {
		if input[k] == '(' {
			depth++
		} else if input[k] == ')' {
			depth--
			if depth == 0 {
				k++
				break
			}
		}
		k++
	}
	argStr := input[start+1 : k-1]
	actuals := splitArgs(argStr)
	*j = k

	body := m.Body
	for idx, param := range m.Args {
		actual := ""
		if idx < len(actuals) {
			actual = strings.TrimSpace(actuals[idx])
		}
		body = replaceWord(body, param, actual)
	}
	return applyDefines(body, defines)
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

func replaceWord(s, word, repl string) string {
	var sb strings.Builder
	n := len(s)
	i := 0
	for i < n {
		if isIdentStart(s[i]) {
			j := i
			for j < n && isIdentPart(s[j]) {
				j++
			}
			if s[i:j] == word {
				sb.WriteString(repl)
			} else {
				sb.WriteString(s[i:j])
			}
			i = j
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || (b >= '0' && b <= '9')
}
