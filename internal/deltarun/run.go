// Package deltarun ties the scanner, dedup matcher, and expanded-image
// writer together into the end-to-end delta generation pipeline, and
// shells out to the external binary-delta tool the way the teacher's
// generateXdelta3Delta/handleApplyDelta drove xdelta3 — except the
// core here is single-threaded per spec.md §5, so the teacher's
// sync.WaitGroup/channel/sync.Once fan-in collapses to one
// errgroup-guarded child process.
package deltarun

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/sqfs/squashdelta/internal/blockscan"
	"github.com/sqfs/squashdelta/internal/expand"
	"github.com/sqfs/squashdelta/internal/logging"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/patch"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// deltaToolName is the external binary-delta tool's executable name,
// resolved via PATH. The core treats it as an out-of-scope
// collaborator (spec.md §1's Non-goals) and only contracts on its
// fixed argument set and its stdout stream.
var deltaToolName = "xdelta3"

// deltaToolArgs builds the fixed, non-configurable argument set
// spec.md §9 calls for: compression djw, level 9, and the source
// expanded file passed as the secondary (reference) file, with the
// target expanded file as the primary input whose encoding is streamed
// to stdout.
func deltaToolArgs(sourceExpanded, targetExpanded string) []string {
	return []string{"-e", "-f", "-S", "djw", "-9", "-s", sourceExpanded, targetExpanded}
}

// Run executes the full pipeline: scan both images, dedup their block
// lists, write both expanded temporaries, then invoke the external
// delta tool and assemble the patch file at patchOutputPath.
//
// Per spec.md §6, patchOutputPath is opened relative to the launch
// working directory before TMPDIR handling changes directory, so a
// relative path behaves the way the caller expects regardless of
// where temporaries end up.
func Run(ctx context.Context, sourcePath, targetPath, patchOutputPath string) error {
	patchFile, err := os.OpenFile(patchOutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return squasherr.IO("unable to create patch output file", err)
	}
	defer patchFile.Close()

	// Resolve the input images against the launch CWD before chdir, for
	// the same reason spec.md §6 requires the patch output to be opened
	// first: a relative path must not silently start resolving against
	// TMPDIR instead.
	absSourcePath, err := filepath.Abs(sourcePath)
	if err != nil {
		return squasherr.IO("unable to resolve source image path", err)
	}
	absTargetPath, err := filepath.Abs(targetPath)
	if err != nil {
		return squasherr.IO("unable to resolve target image path", err)
	}

	tmpDir := os.Getenv("TMPDIR")
	if tmpDir == "" {
		tmpDir = "/tmp"
	}
	if err := os.Chdir(tmpDir); err != nil {
		return squasherr.IO("unable to change into TMPDIR", err)
	}

	src, err := mmapfile.Open(absSourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tgt, err := mmapfile.Open(absTargetPath)
	if err != nil {
		return err
	}
	defer tgt.Close()

	logging.Log.Infow("scanning source image", "path", sourcePath)
	srcRes, err := blockscan.Scan(src, nil)
	if err != nil {
		return err
	}

	logging.Log.Infow("scanning target image", "path", targetPath)
	tgtRes, err := blockscan.Scan(tgt, srcRes)
	if err != nil {
		return err
	}

	srcTrimmed, tgtTrimmed := blockscan.Dedup(srcRes.AllBlocks(), tgtRes.AllBlocks())
	logging.Log.Infow("dedup complete",
		"source_blocks", len(srcTrimmed), "target_blocks", len(tgtTrimmed))

	srcRes.Decompressor.Reset()
	srcExpandedPath, cleanupSrc, err := reserveTempPath(tmpDir, "sqdelta-src-")
	if err != nil {
		return err
	}
	defer cleanupSrc()

	if _, err := expand.Write(srcExpandedPath, src, srcRes.Decompressor, srcTrimmed); err != nil {
		return err
	}

	tgtRes.Decompressor.Reset()
	tgtExpandedPath, cleanupTgt, err := reserveTempPath(tmpDir, "sqdelta-tgt-")
	if err != nil {
		return err
	}
	defer cleanupTgt()

	tgtDescriptors, err := expand.Write(tgtExpandedPath, tgt, tgtRes.Decompressor, tgtTrimmed)
	if err != nil {
		return err
	}

	if err := writePatchPrefix(patchFile, tgtRes.SuperBlock.Compression, tgtDescriptors); err != nil {
		return err
	}

	logging.Log.Infow("invoking external delta tool", "tool", deltaToolName)
	return runDeltaTool(ctx, patchFile, srcExpandedPath, tgtExpandedPath)
}

// writePatchPrefix writes the sqdelta_header followed by the target
// image's trimmed block descriptors, per spec.md §6's patch-file
// layout (header first here, unlike the expanded file's own trailer
// which places its header last).
func writePatchPrefix(w *os.File, compressionID uint16, descriptors []patch.Descriptor) error {
	header := patch.Header{
		Compression: uint32(compressionID),
		BlockCount:  uint32(len(descriptors)),
	}
	if err := patch.WriteHeader(w, header); err != nil {
		return err
	}
	for _, d := range descriptors {
		if err := patch.WriteDescriptor(w, d); err != nil {
			return err
		}
	}
	return nil
}

// runDeltaTool runs the external delta tool with its stdout redirected
// to w, which must already be positioned immediately after the patch
// header and descriptors. A non-zero exit is a KindChildFailure error.
func runDeltaTool(ctx context.Context, w *os.File, sourceExpanded, targetExpanded string) error {
	toolPath, err := exec.LookPath(deltaToolName)
	if err != nil {
		return squasherr.IO("external delta tool not found on PATH", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cmd := exec.CommandContext(ctx, toolPath, deltaToolArgs(sourceExpanded, targetExpanded)...)
		cmd.Stdout = w
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return squasherr.ChildFailure("external delta tool exited non-zero", err)
		}
		return nil
	})
	return g.Wait()
}

// reserveTempPath allocates a unique path under dir without leaving a
// file descriptor open (expand.Write creates and truncates the file
// itself), returning a cleanup func that unlinks it unconditionally —
// the scoped-ownership lifecycle spec.md §9 calls for.
func reserveTempPath(dir, pattern string) (string, func(), error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", nil, squasherr.IO("unable to reserve temporary file", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", nil, squasherr.IO("unable to close reserved temporary file", err)
	}
	return filepath.Clean(path), func() { os.Remove(path) }, nil
}
