// Package emulator implements the latexmk-style convergence loop: engine
// passes, conditional indexing and bibliography stages, log-driven reruns,
// and missing-package self-healing.
package emulator

import (
	"context"
	"os"
	"sort"
	"strings"

	"latexmk-emu/internal/logger"
	"latexmk-emu/internal/runner"
	"latexmk-emu/internal/texlog"
	"latexmk-emu/internal/tlmgr"
	"latexmk-emu/internal/types"
)

const (
	indexTool = "makeindex"
	// maxBibRepairs bounds the style-file install/rebuild cycles of the
	// bibliography stage.
	maxBibRepairs = 3
)

// Emulator drives one document through the compilation state machine.
type Emulator struct {
	cfg       types.Config
	runner    runner.Runner
	resolver  tlmgr.Resolver
	installer tlmgr.Installer
}

// New creates an Emulator. resolver and installer may be nil when
// cfg.AutoInstall is false.
func New(cfg types.Config, r runner.Runner, resolver tlmgr.Resolver, installer tlmgr.Installer) *Emulator {
	if cfg.Engine == "" {
		cfg.Engine = types.DefaultConfig().Engine
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = types.DefaultMaxPasses
	}
	if resolver == nil || installer == nil {
		cfg.AutoInstall = false
	}
	return &Emulator{cfg: cfg, runner: r, resolver: resolver, installer: installer}
}

// Compile runs the full pipeline for doc and returns the outcome. When
// emulation is disabled the system latexmk is invoked instead.
func (e *Emulator) Compile(ctx context.Context, doc *types.Document) (*types.CompileResult, error) {
	if _, err := os.Stat(doc.Path); err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "document not found: "+doc.Path, err)
	}

	if !e.cfg.Emulation {
		return e.runLatexmk(ctx, doc)
	}

	s := &session{e: e, doc: doc, preexisting: snapshotAux(doc)}
	backup := acquirePDFBackup(doc)

	err := s.converge(ctx)
	backup.release()
	s.cleanup(err != nil)

	result := &types.CompileResult{
		Success: err == nil,
		LogPath: doc.Aux("log"),
		Passes:  s.passes,
	}
	if err != nil {
		result.ErrorMsg = err.Error()
		return result, err
	}

	result.PDFPath = doc.PDF()
	result.PageCount = verifyPDF(doc.PDF())
	logger.Info("compilation converged",
		logger.String("pdf", result.PDFPath),
		logger.Int("passes", s.passes),
		logger.Int("pages", result.PageCount))
	return result, nil
}

// session holds the transient state of one Compile call.
type session struct {
	e           *Emulator
	doc         *types.Document
	passes      int
	preserveLog bool
	preexisting map[string]bool
}

// converge walks Init -> EngineRan -> IndexDone -> BibDone -> Converged.
func (s *session) converge(ctx context.Context) error {
	if err := s.enginePass(ctx, nil); err != nil {
		return err
	}

	if err := s.buildIndex(ctx); err != nil {
		return err
	}

	if err := s.buildBib(ctx); err != nil {
		return err
	}

	// Rerun while the log asks for another pass, up to the bound.
	// Exhausting the bound is not an error: some documents never fully
	// stabilize and the current output is accepted as-is.
	for i := 0; i < s.e.cfg.MaxPasses; i++ {
		if !s.needsRerun() {
			break
		}
		if err := s.enginePass(ctx, nil); err != nil {
			return err
		}
	}
	return nil
}

// enginePass runs the engine once. lastResolved is the package set
// resolved on the immediately preceding failed attempt; recovery stops
// when resolving yields the same set again.
func (s *session) enginePass(ctx context.Context, lastResolved []string) error {
	s.passes++
	logger.Debug("engine pass",
		logger.String("engine", s.e.cfg.Engine),
		logger.Int("pass", s.passes))

	args := []string{"-halt-on-error", "-interaction=batchmode", s.doc.Name}
	err := s.e.runner.Run(ctx, s.e.cfg.Engine, args, func() error {
		return s.recoverEngine(ctx, lastResolved)
	})
	if err != nil {
		return err
	}

	// Some engines exit zero despite a fatal missing-package condition;
	// a pass that produced no PDF failed.
	if !fileExists(s.doc.PDF()) {
		logger.Warn("engine reported success but produced no PDF", logger.String("doc", s.doc.Name))
		return s.recoverEngine(ctx, lastResolved)
	}
	return nil
}

// recoverEngine attempts missing-package self-healing after a failed
// engine pass, then retries the pass. Unrecoverable failures are
// translated to a user-facing error from the log.
func (s *session) recoverEngine(ctx context.Context, lastResolved []string) error {
	logPath := s.doc.Aux("log")
	if !s.e.cfg.AutoInstall || !fileExists(logPath) {
		s.preserveLog = true
		return reportLogError(s.doc, logPath)
	}

	resources := texlog.ExtractMissingResources(readLog(logPath))
	candidates, err := s.e.resolver.Resolve(ctx, resources)
	if err != nil {
		logger.Warn("package resolution failed", logger.Err(err))
		s.preserveLog = true
		return reportLogError(s.doc, logPath)
	}

	pkgs := packageNames(candidates)
	if len(pkgs) == 0 || sameSet(pkgs, lastResolved) {
		// Nothing new to install: installation did not fix the error,
		// or there is nothing installable in the log.
		s.preserveLog = true
		return reportLogError(s.doc, logPath)
	}

	if err := s.e.installer.Install(ctx, pkgs); err != nil {
		s.preserveLog = true
		return err
	}
	return s.enginePass(ctx, pkgs)
}

// buildIndex runs the index tool when an index source exists. Indexing
// failures are configuration errors, not missing-package conditions, and
// are immediately fatal.
func (s *session) buildIndex(ctx context.Context) error {
	idx := s.doc.Aux("idx")
	if !fileExists(idx) {
		return nil
	}

	logger.Debug("building index", logger.String("idx", idx))
	err := s.e.runner.Run(ctx, indexTool, []string{s.doc.Base + ".idx"}, nil)
	if err != nil {
		s.preserveLog = true
		return types.NewAppError(types.ErrIndex, "failed to build index for "+s.doc.Name, err)
	}
	return nil
}

// buildBib runs the bibliography stage when its intermediate file exists.
// For biber the .bcf must additionally declare citations, bibliography
// data, and options, guarding against documents that load biblatex
// without citing anything.
func (s *session) buildBib(ctx context.Context) error {
	var tool string
	switch s.e.cfg.BibEngine {
	case types.BibEngineBiber:
		bcf := s.doc.Aux("bcf")
		if !fileExists(bcf) || !bcfHasBibData(bcf) {
			return nil
		}
		tool = string(types.BibEngineBiber)
	default:
		if !fileExists(s.doc.Aux("aux")) {
			return nil
		}
		tool = string(types.BibEngineBibTeX)
	}
	return s.buildBibAttempt(ctx, tool, 0, "")
}

// buildBibAttempt runs the bibliography tool once and repairs missing
// style files, bounded by maxBibRepairs and by the bibliography log not
// changing between attempts.
func (s *session) buildBibAttempt(ctx context.Context, tool string, attempt int, prevLog string) error {
	logger.Debug("building bibliography", logger.String("tool", tool), logger.Int("attempt", attempt))
	if err := s.e.runner.Run(ctx, tool, []string{s.doc.Base}, nil); err != nil {
		// The error marker in the tool's own log is the authoritative
		// failure signal; exit status alone is noise for bibtex.
		logger.Debug("bibliography tool exited with an error", logger.Err(err))
	}

	blgText := readLog(s.doc.Aux("blg"))
	if !hasBibErrorMarker(blgText, tool) {
		return nil
	}

	if !s.e.cfg.AutoInstall || attempt >= maxBibRepairs || blgText == prevLog {
		// Degraded success: the document is usable without a clean
		// bibliography, so surface the log and carry on.
		logger.Warn("bibliography build reported errors",
			logger.String("tool", tool),
			logger.String("log", blgText))
		return nil
	}

	styles := texlog.ExtractMissingStyleFiles(blgText)
	candidates, err := s.e.resolver.Resolve(ctx, styles)
	if err != nil {
		logger.Warn("style file resolution failed", logger.Err(err))
		return nil
	}
	pkgs := packageNames(candidates)
	if len(pkgs) == 0 {
		logger.Warn("bibliography build reported errors",
			logger.String("tool", tool),
			logger.String("log", blgText))
		return nil
	}
	if err := s.e.installer.Install(ctx, pkgs); err != nil {
		return err
	}
	return s.buildBibAttempt(ctx, tool, attempt+1, blgText)
}

// needsRerun inspects the engine log for a rerun marker. A missing log is
// reported as a warning and treated as "rerun anyway".
func (s *session) needsRerun() bool {
	logPath := s.doc.Aux("log")
	if !fileExists(logPath) {
		logger.Warn("engine log missing at rerun check, running another pass",
			logger.String("log", logPath))
		return true
	}
	return texlog.HasRerunMarker(readLog(logPath))
}

// runLatexmk delegates to the system latexmk when emulation is off.
func (e *Emulator) runLatexmk(ctx context.Context, doc *types.Document) (*types.CompileResult, error) {
	args := []string{latexmkEngineFlag(e.cfg.Engine), doc.Name}
	err := e.runner.Run(ctx, "latexmk", args, func() error {
		return reportLogError(doc, doc.Aux("log"))
	})

	result := &types.CompileResult{
		Success: err == nil,
		LogPath: doc.Aux("log"),
		Passes:  1,
	}
	if err != nil {
		result.ErrorMsg = err.Error()
		return result, err
	}
	result.PDFPath = doc.PDF()
	result.PageCount = verifyPDF(doc.PDF())
	return result, nil
}

func latexmkEngineFlag(engine string) string {
	switch engine {
	case "xelatex":
		return "-xelatex"
	case "lualatex":
		return "-lualatex"
	default:
		return "-pdf"
	}
}

// hasBibErrorMarker checks the bibliography log for the tool's native
// error phrasing: bibtex counts "error message"s, biber prefixes lines
// with ERROR.
func hasBibErrorMarker(blgText, tool string) bool {
	if blgText == "" {
		return false
	}
	if tool == string(types.BibEngineBiber) {
		return containsLinePrefix(blgText, "ERROR")
	}
	return strings.Contains(blgText, "error message")
}

// bcfHasBibData reports whether a biber control file declares citations,
// bibliography data, and options. All three must be present for a
// bibliography build to be meaningful.
func bcfHasBibData(bcfPath string) bool {
	raw, err := os.ReadFile(bcfPath)
	if err != nil {
		return false
	}
	content := string(raw)
	for _, signal := range []string{"bcf:citekey", "bcf:bibdata", "bcf:options"} {
		if !strings.Contains(content, signal) {
			return false
		}
	}
	return true
}

func packageNames(candidates []tlmgr.Candidate) []string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Package)
	}
	return names
}

// sameSet reports whether a and b contain the same package names,
// ignoring order.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
