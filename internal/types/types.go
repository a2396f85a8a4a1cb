// Package types defines core data types and enums for the latexmk emulator.
package types

import (
	"path/filepath"
	"strings"
)

// BibEngine selects the bibliography processor.
type BibEngine string

const (
	// BibEngineBibTeX is the default bibliography engine
	BibEngineBibTeX BibEngine = "bibtex"
	// BibEngineBiber is the biblatex bibliography engine
	BibEngineBiber BibEngine = "biber"
)

// DefaultMaxPasses is the default bound on engine re-runs after the
// initial pass.
const DefaultMaxPasses = 10

// Config holds the tunables of one compilation run. It is built once by
// the caller and passed into the emulator at construction.
type Config struct {
	// Engine is the typesetting engine command (e.g. "xelatex")
	Engine string `json:"engine"`
	// Emulation enables the built-in latexmk emulation; when false the
	// system latexmk is invoked instead
	Emulation bool `json:"emulation"`
	// MaxPasses bounds engine re-runs driven by rerun markers
	MaxPasses int `json:"max_passes"`
	// AutoInstall enables missing-package resolution via tlmgr
	AutoInstall bool `json:"auto_install"`
	// BibEngine is "bibtex" or "biber"
	BibEngine BibEngine `json:"bib_engine"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Engine:      "xelatex",
		Emulation:   true,
		MaxPasses:   DefaultMaxPasses,
		AutoInstall: true,
		BibEngine:   BibEngineBibTeX,
	}
}

// AuxExtensions is the fixed set of auxiliary-file extensions an engine,
// indexer, or bibliography tool may leave next to the document.
var AuxExtensions = []string{
	"log", "aux", "bbl", "blg", "fls", "out", "lof", "lot", "idx",
	"toc", "nav", "snm", "vrb", "ilg", "ind", "xwm", "bcf", "brf",
	"run.xml",
}

// Document identifies one LaTeX source file. All auxiliary paths are
// derived from the base path and never tracked independently.
type Document struct {
	// Path is the .tex source path as given by the caller
	Path string
	// Dir is the directory containing the source
	Dir string
	// Name is the file name without directory
	Name string
	// Base is the file name with the .tex extension stripped
	Base string
}

// NewDocument validates texPath and derives the base name. It fails with
// ErrInvalidInput when the path does not end in .tex.
func NewDocument(texPath string) (*Document, error) {
	name := filepath.Base(texPath)
	if !strings.HasSuffix(name, ".tex") || name == ".tex" {
		return nil, NewAppError(ErrInvalidInput, "not a .tex document: "+texPath, nil)
	}
	return &Document{
		Path: texPath,
		Dir:  filepath.Dir(texPath),
		Name: name,
		Base: strings.TrimSuffix(name, ".tex"),
	}, nil
}

// Aux returns the path of the auxiliary file with the given extension,
// e.g. Aux("log") or Aux("run.xml").
func (d *Document) Aux(ext string) string {
	return filepath.Join(d.Dir, d.Base+"."+ext)
}

// PDF returns the output PDF path.
func (d *Document) PDF() string {
	return d.Aux("pdf")
}

// AuxFiles returns every derivable auxiliary path in the fixed order of
// AuxExtensions.
func (d *Document) AuxFiles() []string {
	paths := make([]string, 0, len(AuxExtensions))
	for _, ext := range AuxExtensions {
		paths = append(paths, d.Aux(ext))
	}
	return paths
}

// CompileResult describes the outcome of one emulator run.
type CompileResult struct {
	Success   bool   `json:"success"`
	PDFPath   string `json:"pdf_path"`
	LogPath   string `json:"log_path"`
	Passes    int    `json:"passes"`     // total engine invocations
	PageCount int    `json:"page_count"` // 0 when unknown
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// ErrorCode classifies application errors.
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCompile      ErrorCode = "COMPILE_ERROR"
	ErrIndex        ErrorCode = "INDEX_ERROR"
	ErrInstall      ErrorCode = "INSTALL_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError is the application error type carried across package
// boundaries.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
