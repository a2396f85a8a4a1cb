package emulator

import (
	"os"
	"strings"

	"latexmk-emu/internal/logger"
	"latexmk-emu/internal/texlog"
	"latexmk-emu/internal/types"
)

// snapshotAux records which auxiliary files exist before the first pass,
// so cleanup only removes what the loop itself produced.
func snapshotAux(doc *types.Document) map[string]bool {
	existing := make(map[string]bool)
	for _, p := range doc.AuxFiles() {
		if fileExists(p) {
			existing[p] = true
		}
	}
	return existing
}

// cleanup deletes auxiliary files that appeared during the run. The log
// survives a hard failure for diagnosis.
func (s *session) cleanup(failed bool) {
	logPath := s.doc.Aux("log")
	for _, p := range s.doc.AuxFiles() {
		if s.preexisting[p] {
			continue
		}
		if p == logPath && failed && s.preserveLog {
			logger.Info("compilation log preserved", logger.String("log", logPath))
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove auxiliary file", logger.String("file", p), logger.Err(err))
		}
	}
}

// pdfBackup moves a pre-existing output PDF aside before the loop starts.
// release restores it when no new PDF was produced and discards it
// otherwise; it is honored on every exit path.
type pdfBackup struct {
	pdfPath    string
	backupPath string
	moved      bool
}

func acquirePDFBackup(doc *types.Document) *pdfBackup {
	b := &pdfBackup{pdfPath: doc.PDF(), backupPath: doc.PDF() + ".bak"}
	if !fileExists(b.pdfPath) {
		return b
	}
	if err := os.Rename(b.pdfPath, b.backupPath); err != nil {
		logger.Warn("failed to back up existing PDF", logger.String("pdf", b.pdfPath), logger.Err(err))
		return b
	}
	b.moved = true
	return b
}

func (b *pdfBackup) release() {
	if !b.moved {
		return
	}
	if fileExists(b.pdfPath) {
		if err := os.Remove(b.backupPath); err != nil {
			logger.Warn("failed to discard PDF backup", logger.String("backup", b.backupPath), logger.Err(err))
		}
		return
	}
	if err := os.Rename(b.backupPath, b.pdfPath); err != nil {
		logger.Warn("failed to restore PDF backup", logger.String("backup", b.backupPath), logger.Err(err))
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// readLog reads and decodes a log file; a missing or unreadable log
// yields an empty string.
func readLog(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return texlog.Decode(raw)
}


// containsLinePrefix reports whether any line of text starts with prefix.
func containsLinePrefix(text, prefix string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
