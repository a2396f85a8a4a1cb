package emulator

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"latexmk-emu/internal/logger"
	"latexmk-emu/internal/texlog"
	"latexmk-emu/internal/types"
)

// reportLogError turns a failed run's log into a terminal CompilationError.
// The first real error blocks are carried verbatim so the user sees what
// the engine saw; the log path is named for further inspection.
func reportLogError(doc *types.Document, logPath string) error {
	msg := "failed to compile " + doc.Name
	if !fileExists(logPath) {
		return types.NewAppError(types.ErrCompile, msg, nil)
	}

	blocks := texlog.ExtractErrorBlocks(readLog(logPath))
	if len(blocks) == 0 {
		// The engine failed for a reason not captured by the "! "
		// convention.
		return types.NewAppError(types.ErrCompile, msg, nil)
	}

	details := texlog.FormatErrorBlocks(blocks) + "\nsee " + logPath + " for more information"
	return types.NewAppErrorWithDetails(types.ErrCompile, msg, details, nil)
}

// verifyPDF validates the produced PDF and returns its page count. The
// engine already reported success, so a parser disagreement is only worth
// a warning.
func verifyPDF(pdfPath string) int {
	if err := api.ValidateFile(pdfPath, nil); err != nil {
		logger.Warn("produced PDF failed validation", logger.String("pdf", pdfPath), logger.Err(err))
		return 0
	}
	pages, err := api.PageCountFile(pdfPath)
	if err != nil {
		logger.Warn("could not count PDF pages", logger.String("pdf", pdfPath), logger.Err(err))
		return 0
	}
	return pages
}
