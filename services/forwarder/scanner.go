package forwarder

import (
	"context"
	"errors"
	"iter"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const dicomSuffix = ".dcm"

var errStopWalk = errors.New("stop walk")

// IsCandidate reports whether a basename marks a DICOM instance. The match is
// case-sensitive.
func IsCandidate(name string) bool {
	return strings.HasSuffix(name, dicomSuffix)
}

// Scanner enumerates DICOM candidates below a root directory.
//
// The walk uses lstat, so symbolic links are never followed into directories;
// a link whose own name ends in ".dcm" is reported like a file. Directories are
// never reported, whatever their name.
type Scanner struct {
	fs   billy.Filesystem
	root string
}

func NewScanner(fs billy.Filesystem, root string) *Scanner {
	return &Scanner{fs: fs, root: root}
}

// Scan returns a fresh, lazy sequence of candidate paths for one pass. Paths
// are produced while the tree is being walked, so the consumer may remove a
// path before the next one is read. A missing root produces nothing, and
// entries that disappear mid-walk are passed over. Any other walk failure is
// produced once as a scan *OpError and ends the sequence.
func (s *Scanner) Scan(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		failed := s.root
		err := util.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					if path == s.root {
						return errStopWalk
					}
					// vanished between readdir and lstat
					return nil
				}
				failed = path
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if info.IsDir() || !IsCandidate(info.Name()) {
				return nil
			}
			if !yield(path, nil) {
				return errStopWalk
			}
			return nil
		})

		switch {
		case err == nil, errors.Is(err, errStopWalk):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			yield("", err)
		default:
			yield("", newOpError(OpScan, failed, err))
		}
	}
}
