package texlog

import (
	"reflect"
	"testing"
)

func TestExtractMissingResources(t *testing.T) {
	tests := []struct {
		name     string
		logText  string
		expected []MissingResource
	}{
		{
			name:     "empty log",
			logText:  "",
			expected: nil,
		},
		{
			name:    "latex file not found",
			logText: "! LaTeX Error: File `framed.sty' not found.",
			expected: []MissingResource{
				{Raw: "framed.sty", Query: "framed.sty"},
			},
		},
		{
			name: "language definition file",
			logText: "! Package babel Error: Unknown option `ngerman'. Either you misspelled it\n" +
				"(babel)                or the language definition file ngerman.ldf was not found.",
			expected: []MissingResource{
				{Raw: "ngerman.ldf", Query: "ngerman.ldf"},
			},
		},
		{
			name:    "font not loadable gets font suffix",
			logText: "! Font \\U/rsfs/m/n/10=rsfs10 at 10.0pt not loadable: Metric (TFM) file not found.",
			expected: []MissingResource{
				{Raw: "rsfs10", Query: "rsfs10[.](tfm|afm|mf|otf)"},
			},
		},
		{
			name:    "quoted font name",
			logText: `! Font \zf@basefont="FandolSong-Regular" at 10.0pt not loadable: Metric (TFM) file or installed font not found.`,
			expected: []MissingResource{
				{Raw: "FandolSong-Regular", Query: "FandolSong-Regular[.](tfm|afm|mf|otf)"},
			},
		},
		{
			name:    "pdftex file font error",
			logText: "!pdfTeX error: pdflatex (file tcrm0700): Font tcrm0700 at 600 not found",
			expected: []MissingResource{
				{Raw: "tcrm0700", Query: "tcrm0700[.](tfm|afm|mf|otf)"},
			},
		},
		{
			name:    "install hint gets sty suffix",
			logText: "! Package widetext Error: You must install the flushend package to use widetext.",
			expected: []MissingResource{
				{Raw: "flushend", Query: "flushend.sty"},
			},
		},
		{
			name:    "cannot open file used verbatim",
			logText: "!pdfTeX error: pdflatex (file 8r.enc): cannot open encoding file for reading",
			expected: []MissingResource{
				{Raw: "8r.enc", Query: "8r.enc"},
			},
		},
		{
			name:    "ctex fontset",
			logText: "! CTeX fontset `fandol' is unavailable in current mode.",
			expected: []MissingResource{
				{Raw: "fandol", Query: "fandol"},
			},
		},
		{
			name:    "command not found",
			logText: "sh: makeindex: command not found",
			expected: []MissingResource{
				{Raw: "makeindex", Query: "makeindex"},
			},
		},
		{
			name: "duplicates collapse preserving order",
			logText: "! LaTeX Error: File `framed.sty' not found.\n" +
				"some unrelated line\n" +
				"! LaTeX Error: File `xcolor.sty' not found.\n" +
				"! LaTeX Error: File `framed.sty' not found.",
			expected: []MissingResource{
				{Raw: "framed.sty", Query: "framed.sty"},
				{Raw: "xcolor.sty", Query: "xcolor.sty"},
			},
		},
		{
			name:     "unrelated error lines yield nothing",
			logText:  "! Undefined control sequence.\nl.5 \\badmacro",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMissingResources(tt.logText)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestExtractMissingStyleFiles(t *testing.T) {
	logText := "The top-level auxiliary file: paper.aux\n" +
		"I couldn't open style file apa.bst\n" +
		"---line 3 of file paper.aux\n" +
		"I couldn't open style file apa.bst\n"

	got := ExtractMissingStyleFiles(logText)
	expected := []MissingResource{{Raw: "apa.bst", Query: "apa.bst"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}

	if res := ExtractMissingStyleFiles("(There were 2 warnings)"); res != nil {
		t.Errorf("expected no style files, got %v", res)
	}
}

func TestHasRerunMarker(t *testing.T) {
	tests := []struct {
		name     string
		logText  string
		expected bool
	}{
		{
			name:     "label rerun",
			logText:  "LaTeX Warning: Label(s) may have changed. Rerun to get cross-references right.",
			expected: true,
		},
		{
			name:     "rerun biber",
			logText:  "Package biblatex Warning: Please (re)run Biber on the file:",
			expected: true,
		},
		{
			name:     "clean log",
			logText:  "Output written on paper.pdf (3 pages, 52817 bytes).",
			expected: false,
		},
		{
			name:     "empty",
			logText:  "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasRerunMarker(tt.logText); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestExtractErrorBlocks(t *testing.T) {
	logText := "This is XeTeX, Version 3.141592653\n" +
		"! Undefined control sequence.\n" +
		"l.5 \\badmacro\n" +
		"\n" +
		"Here is more chatter.\n" +
		"! LaTeX Error: Something else broke.\n" +
		"See the LaTeX manual for explanation.\n" +
		"\n" +
		"!  ==> Fatal error occurred, no output PDF file produced!\n"

	blocks := ExtractErrorBlocks(logText)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %v", len(blocks), blocks)
	}
	if blocks[0] != "! Undefined control sequence.\nl.5 \\badmacro" {
		t.Errorf("unexpected first block: %q", blocks[0])
	}
	if blocks[1] != "! LaTeX Error: Something else broke.\nSee the LaTeX manual for explanation." {
		t.Errorf("unexpected second block: %q", blocks[1])
	}

	joined := FormatErrorBlocks(blocks)
	if joined != blocks[0]+"\n\n"+blocks[1] {
		t.Errorf("unexpected joined output: %q", joined)
	}
}

func TestExtractErrorBlocksBlockRunsToEOF(t *testing.T) {
	logText := "chatter\n! Missing $ inserted.\nl.10 x^2"
	blocks := ExtractErrorBlocks(logText)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0] != "! Missing $ inserted.\nl.10 x^2" {
		t.Errorf("unexpected block: %q", blocks[0])
	}
}

func TestDecode(t *testing.T) {
	if got := Decode([]byte("plain ascii log")); got != "plain ascii log" {
		t.Errorf("unexpected decode: %q", got)
	}

	// 0xE9 is latin-1 e-acute and invalid as a standalone UTF-8 byte.
	got := Decode([]byte{'c', 'a', 'f', 0xE9})
	if got != "caf\u00e9" {
		t.Errorf("expected latin-1 fallback, got %q", got)
	}
}
