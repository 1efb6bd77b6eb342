// Package engine drives the remediation pipeline: per-object orchestration,
// dependent-code propagation, file reassembly, and persistence of the
// aggregate result.
package engine

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"sort"

	"github.com/floegence/remedy-engine/internal/patch"
)

// Object outcome statuses. Statuses are canonical lowercase; aggregation
// compares these exact constants.
const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusUnmodified = "unmodified"
	StatusPartial    = "partial success"
)

// ObjectOutcome is the per-object result of one remediation pass.
type ObjectOutcome struct {
	ObjectID string `json:"objectid"`
	Status   string `json:"status"`
	Message  string `json:"message"`

	// DependentInfo marks outcomes produced by dependent-code propagation.
	DependentInfo string `json:"dependent_info,omitempty"`
}

// EngineOutput is the aggregate result for one request, persisted whole and
// replacing any prior record for the same request id.
type EngineOutput struct {
	RequestID     string           `json:"requestid"`
	IssueID       int              `json:"issueid"`
	ApplicationID string           `json:"applicationid"`
	Objects       []ObjectOutcome  `json:"objects"`
	Files         []*FileEdits     `json:"contentinfo"`
	Status        string           `json:"status"`
	CreatedDate   string           `json:"createddate"`
}

// FileEdits accumulates line-range edits against one file, keyed by the
// file's full path. The original lines are kept for reassembly but are not
// part of the persisted record.
type FileEdits struct {
	Path   string
	FileID int
	Edits  map[patch.Range]string

	original []string
}

// EditRecord is the persisted form of one line-range edit.
type EditRecord struct {
	StartLine   int    `json:"startline"`
	EndLine     int    `json:"endline"`
	Replacement string `json:"replacement"`
}

func (f *FileEdits) MarshalJSON() ([]byte, error) {
	records := make([]EditRecord, 0, len(f.Edits))
	for r, text := range f.Edits {
		records = append(records, EditRecord{StartLine: r.Start, EndLine: r.End, Replacement: text})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartLine < records[j].StartLine })
	return json.Marshal(struct {
		Path   string       `json:"filefullname"`
		FileID int          `json:"fileid"`
		Edits  []EditRecord `json:"edits"`
	}{Path: f.Path, FileID: f.FileID, Edits: records})
}

func (f *FileEdits) UnmarshalJSON(b []byte) error {
	var w struct {
		Path   string       `json:"filefullname"`
		FileID int          `json:"fileid"`
		Edits  []EditRecord `json:"edits"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	f.Path = w.Path
	f.FileID = w.FileID
	f.Edits = make(map[patch.Range]string, len(w.Edits))
	for _, e := range w.Edits {
		f.Edits[patch.Range{Start: e.StartLine, End: e.EndLine}] = e.Replacement
	}
	return nil
}

// fileFor returns the accumulated edit set for a path, or nil.
func (o *EngineOutput) fileFor(path string) *FileEdits {
	for _, f := range o.Files {
		if f.Path == path {
			return f
		}
	}
	return nil
}

// addEdit records a replacement for a line range of the given file, creating
// the per-file edit set on first use. Original lines are captured once, from
// the first edit against the file.
func (o *EngineOutput) addEdit(path string, fileID int, original []string, r patch.Range, replacement string) {
	f := o.fileFor(path)
	if f == nil {
		f = &FileEdits{
			Path:     path,
			FileID:   fileID,
			Edits:    make(map[patch.Range]string),
			original: original,
		}
		o.Files = append(o.Files, f)
	}
	f.Edits[r] = replacement
}

// AggregateStatus folds per-object statuses into the request status:
// failure iff all failed, unmodified iff all unmodified, success iff all
// succeeded, partial success otherwise. An empty object list counts as
// unmodified.
func AggregateStatus(objects []ObjectOutcome) string {
	allFailure, allUnmodified, allSuccess := true, true, true
	for _, obj := range objects {
		switch obj.Status {
		case StatusFailure:
			allUnmodified, allSuccess = false, false
		case StatusUnmodified:
			allFailure, allSuccess = false, false
		case StatusSuccess:
			allFailure, allUnmodified = false, false
		default:
			allFailure, allUnmodified, allSuccess = false, false, false
		}
	}
	switch {
	case allUnmodified:
		return StatusUnmodified
	case allFailure:
		return StatusFailure
	case allSuccess:
		return StatusSuccess
	default:
		return StatusPartial
	}
}

// FilesContent is the persisted updated-file record for one request.
type FilesContent struct {
	RequestID   string        `json:"requestid"`
	Updated     []FilePayload `json:"updatedcontentinfo"`
	CreatedDate string        `json:"createddate"`
}

// FilePayload is one reconstructed file staged for persistence.
type FilePayload struct {
	FileID  string `json:"fileid"`
	Path    string `json:"filepath"`
	Content string `json:"updatedfilecontent"`
}

const fileIDLength = 24

const fileIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newFileID returns a 24-character random alphanumeric identifier for a
// reconstructed file blob.
func newFileID() string {
	b := make([]byte, fileIDLength)
	max := big.NewInt(int64(len(fileIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform RNG is broken; there is
			// no useful fallback for an identifier.
			panic(err)
		}
		b[i] = fileIDAlphabet[n.Int64()]
	}
	return string(b)
}
