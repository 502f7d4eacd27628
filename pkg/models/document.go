package models

import "time"

// DocumentInfo describes a document in the vault. Paths are vault-relative
// and use forward slashes.
type DocumentInfo struct {
	Path      string
	Name      string
	Folder    string
	Extension string
	ModTime   time.Time
	CreatedAt time.Time
}

// DocumentMeta is the parsed front-matter and heading outline of a document.
type DocumentMeta struct {
	FrontMatter map[string]any
	Headings    []string
	// FrontMatterLines is the number of lines occupied by the front-matter
	// block including both delimiters, or 0 when there is none.
	FrontMatterLines int
}

// ChangeOp is the kind of a vault change notification.
type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeModify ChangeOp = "modify"
	ChangeDelete ChangeOp = "delete"
	ChangeRename ChangeOp = "rename"
)

// ChangeEvent is a single vault change notification.
type ChangeEvent struct {
	Path string
	Op   ChangeOp
	At   time.Time
}
