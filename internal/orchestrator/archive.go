package orchestrator

import (
	"archive/zip"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/painel-fiscal/nfse-importer/constants"
	"github.com/painel-fiscal/nfse-importer/internal/common"
	"github.com/painel-fiscal/nfse-importer/internal/storage"
)

// expandedMember is one eligible PDF pulled out of an uploaded archive.
type expandedMember struct {
	FileName   string
	StoredPath string
	Size       int64
}

// pageCount is swapped out in tests so archive fixtures do not need real
// PDF bytes.
var pageCount = api.PageCountFile

// expandArchive unpacks the PDF members of a stored zip into the content
// store. Non-PDF members and surrounding junk entries are skipped; members
// that fail structural validation are skipped with a log line. A corrupt
// archive, or one yielding no usable member, is a validation error.
func expandArchive(store *storage.Store, fileName, storedPath string, logger *slog.Logger) ([]expandedMember, error) {
	abs, err := store.Path(storedPath)
	if err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, common.ValidationError(fmt.Sprintf("invalid zip archive: %v", err))
	}
	defer zr.Close()

	var members []expandedMember
	for _, zf := range zr.File {
		name := path.Base(zf.Name)
		if zf.FileInfo().IsDir() || skipArchiveEntry(zf.Name) || !constants.IsPDFName(name) {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			logger.Warn("skipping unreadable archive member", "member", zf.Name, "error", err)
			continue
		}
		rel, size, err := store.Save(name, rc)
		_ = rc.Close()
		if err != nil {
			return nil, err
		}

		memberAbs, err := store.Path(rel)
		if err != nil {
			return nil, err
		}
		if pages, err := pageCount(memberAbs); err != nil || pages == 0 {
			logger.Warn("skipping invalid pdf member", "member", zf.Name, "error", err)
			_ = store.Delete(rel)
			continue
		}

		members = append(members, expandedMember{FileName: name, StoredPath: rel, Size: size})
	}
	if len(members) == 0 {
		return nil, common.ValidationErrorf("archive %s contains no valid pdf documents", fileName)
	}
	return members, nil
}

// skipArchiveEntry filters the metadata entries archiving tools leave
// behind.
func skipArchiveEntry(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") ||
		strings.HasPrefix(path.Base(name), "._") ||
		path.Base(name) == ".DS_Store"
}
