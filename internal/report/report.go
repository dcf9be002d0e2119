package report

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"armalloc/internal/engine"
	"armalloc/internal/util"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Reporter writes run artifacts to disk.
type Reporter struct {
	OutputDir   string
	UseUUIDPath bool
	runSeq      int
}

// Run describes a report directory.
type Run struct {
	ID  string
	Dir string
}

// Summary captures the persisted metadata for a run.
type Summary struct {
	RunID          string              `json:"run_id"`
	RunDir         string              `json:"run_dir"`
	Timestamp      string              `json:"timestamp"`
	Source         string              `json:"source"`
	Experiments    int                 `json:"experiments"`
	Failed         int                 `json:"failed"`
	Winners        map[string][]string `json:"winners"`
	ArchiveName    string              `json:"archive_name,omitempty"`
	ArchiveCodec   string              `json:"archive_codec,omitempty"`
	UploadLocation string              `json:"upload_location,omitempty"`
}

const (
	AllocationsFile = "allocations.json"
	SummaryFile     = "summary.json"
	RunArchiveName  = "run.tar.zst"
	RunArchiveCodec = "zstd"
	timestampLayout = time.RFC3339
)

// New creates a reporter that writes to outputDir.
func New(outputDir string) *Reporter {
	return &Reporter{OutputDir: outputDir}
}

// NewRun allocates a new run directory.
func (r *Reporter) NewRun() (Run, error) {
	r.runSeq++
	runID := uuid.New().String()
	if v7, err := uuid.NewV7(); err == nil {
		runID = v7.String()
	}
	runDir := fmt.Sprintf("run_%04d_%s", r.runSeq, runID)
	if r.UseUUIDPath {
		runDir = runID
	}
	dir := filepath.Join(r.OutputDir, runDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Run{}, errors.Wrap(err, "create run dir")
	}
	return Run{ID: runID, Dir: dir}, nil
}

// BuildSummary derives the run summary from results.
func BuildSummary(run Run, source string, results []engine.Result) Summary {
	s := Summary{
		RunID:       run.ID,
		RunDir:      run.Dir,
		Timestamp:   time.Now().UTC().Format(timestampLayout),
		Source:      source,
		Experiments: len(results),
		Winners:     make(map[string][]string, len(results)),
	}
	for _, res := range results {
		if res.Error != "" {
			s.Failed++
			continue
		}
		s.Winners[res.Experiment] = res.Winners
	}
	return s
}

// WriteAllocations writes allocations.json into the run directory.
func (r *Reporter) WriteAllocations(run Run, results []engine.Result) error {
	return writeJSON(filepath.Join(run.Dir, AllocationsFile), results)
}

// WriteSummary writes summary.json into the run directory.
func (r *Reporter) WriteSummary(run Run, summary Summary) error {
	return writeJSON(filepath.Join(run.Dir, SummaryFile), summary)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", filepath.Base(path))
	}
	defer util.CloseWithErr(f, filepath.Base(path))
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return errors.Wrapf(enc.Encode(v), "encode %s", filepath.Base(path))
}

// WriteArchive creates a compressed archive of the run directory.
func (r *Reporter) WriteArchive(run Run) (name string, codec string, err error) {
	archivePath := filepath.Join(run.Dir, RunArchiveName)
	if removeErr := os.Remove(archivePath); removeErr != nil && !os.IsNotExist(removeErr) {
		return "", "", removeErr
	}
	defer func() {
		if err != nil {
			_ = os.Remove(archivePath)
		}
	}()
	file, err := os.Create(archivePath)
	if err != nil {
		return "", "", err
	}
	defer util.CloseWithErr(file, "archive output")

	zw, err := zstd.NewWriter(file)
	if err != nil {
		return "", "", err
	}
	defer func() {
		if closeErr := zw.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	tw := tar.NewWriter(zw)
	defer func() {
		if closeErr := tw.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	walkErr := filepath.WalkDir(run.Dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || path == archivePath {
			return nil
		}
		rel, err := filepath.Rel(run.Dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer util.CloseWithErr(src, "archive source")
		_, err = io.Copy(tw, src)
		return err
	})
	if walkErr != nil {
		return "", "", errors.Wrap(walkErr, "archive run")
	}
	return RunArchiveName, RunArchiveCodec, nil
}
