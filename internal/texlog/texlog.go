// Package texlog extracts structured signals from TeX engine and
// bibliography tool logs: missing file/font/package tokens, rerun markers,
// and user-facing error blocks.
package texlog

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// MissingResource is a filename-like token extracted from a log, together
// with the search query used to resolve it to an installable package.
type MissingResource struct {
	// Raw is the token as captured from the log
	Raw string
	// Query is the pattern handed to package search; for extension-less
	// font or style tokens it carries a category suffix
	Query string
}

type suffixRule int

const (
	suffixNone suffixRule = iota
	suffixFont
	suffixSty
)

type logPattern struct {
	re     *regexp.Regexp
	suffix suffixRule
}

// The ordered extraction table. Each pattern has exactly one capture
// group; the first matching pattern wins per line.
var missingFilePatterns = []logPattern{
	// ! Font \U/rsfs/m/n/10=rsfs10 at 10.0pt not loadable: Metric (TFM) file not found
	{regexp.MustCompile(`! Font [^=]+=([^ ]+).+ not loadable: Metric \(TFM\) file not found`), suffixFont},
	// ! Font \zf@basefont="FandolSong-Regular" at 10.0pt not loadable: ...
	{regexp.MustCompile(`! Font [^=]+="([^"]+)".+ not loadable: Metric \(TFM\) file or installed font not found`), suffixFont},
	// !pdfTeX error: pdflatex (file tcrm0700): Font tcrm0700 at 600 not found
	{regexp.MustCompile(`!.+ error: .*\(file ([^)]+)\): Font .+ not found`), suffixFont},
	// ! Package widetext Error: ... Install the flushend package ...
	{regexp.MustCompile(`! Package \S+ Error: .*[Ii]nstall the ([a-zA-Z0-9-]+) package`), suffixSty},
	// ! LaTeX Error: File `framed.sty' not found.
	{regexp.MustCompile("! LaTeX Error: File `([^']+)' not found"), suffixNone},
	// ... the language definition file ngerman.ldf was not found.
	{regexp.MustCompile(`the language definition file (\S+) was not found`), suffixNone},
	// !pdfTeX error: pdflatex (file 8r.enc): cannot open encoding file for reading
	{regexp.MustCompile(`!.+ error: .*\(file ([^)]+)\): cannot open`), suffixNone},
	// ! CTeX fontset `fandol' is unavailable in current mode.
	{regexp.MustCompile("! CTeX fontset `([^']+)' is unavailable"), suffixNone},
	// sh: makeindex: command not found
	{regexp.MustCompile(`([^\s:]+): command not found`), suffixNone},
}

var styleFilePattern = regexp.MustCompile(`open style file (\S+)`)

// Rerun marker phrases the engine emits when another pass is required.
var rerunMarkers = []string{
	"Rerun to get ",
	"Please (re)run ",
}

// fatalErrorMarker is the terminal line every failed run ends with; it
// carries no diagnostic value of its own.
const fatalErrorMarker = "Fatal error occurred"

// Decode converts raw log bytes to a string. Engine logs are written in
// the system's 8-bit encoding; bytes that are not valid UTF-8 are decoded
// as Latin-1 so pattern matching never sees replacement runes.
func Decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// ExtractMissingResources scans logText line by line against the ordered
// pattern table and returns captured tokens de-duplicated in encounter
// order.
func ExtractMissingResources(logText string) []MissingResource {
	var out []MissingResource
	seen := make(map[string]bool)

	for _, line := range strings.Split(logText, "\n") {
		for _, p := range missingFilePatterns {
			m := p.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			token := m[1]
			if token != "" && !seen[token] {
				seen[token] = true
				out = append(out, MissingResource{Raw: token, Query: applySuffix(token, p.suffix)})
			}
			break
		}
	}
	return out
}

// ExtractMissingStyleFiles returns tokens from bibliography-log lines of
// the form "I couldn't open style file X", used by the bibliography
// repair loop.
func ExtractMissingStyleFiles(logText string) []MissingResource {
	var out []MissingResource
	seen := make(map[string]bool)

	for _, line := range strings.Split(logText, "\n") {
		m := styleFilePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		token := m[1]
		if token != "" && !seen[token] {
			seen[token] = true
			out = append(out, MissingResource{Raw: token, Query: token})
		}
	}
	return out
}

// HasRerunMarker reports whether any line of logText asks for another
// engine pass.
func HasRerunMarker(logText string) bool {
	for _, marker := range rerunMarkers {
		if strings.Contains(logText, marker) {
			return true
		}
	}
	return false
}

// ExtractErrorBlocks collects every block starting at a "! " line (other
// than the terminal fatal-error marker) through the next blank line.
func ExtractErrorBlocks(logText string) []string {
	lines := strings.Split(logText, "\n")
	var blocks []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "! ") || strings.Contains(line, fatalErrorMarker) {
			continue
		}
		j := i
		for j < len(lines) && strings.TrimSpace(lines[j]) != "" {
			j++
		}
		blocks = append(blocks, strings.Join(lines[i:j], "\n"))
		i = j
	}
	return blocks
}

// FormatErrorBlocks joins extracted blocks with separating blank lines
// for user-facing output.
func FormatErrorBlocks(blocks []string) string {
	return strings.Join(blocks, "\n\n")
}

// applySuffix appends the category suffix pattern to extension-less
// tokens. Font tokens get the font-format alternation used as a search
// regex; install-hint tokens get a literal .sty.
func applySuffix(token string, rule suffixRule) string {
	if strings.Contains(token, ".") {
		return token
	}
	switch rule {
	case suffixFont:
		return token + `[.](tfm|afm|mf|otf)`
	case suffixSty:
		return token + ".sty"
	}
	return token
}
