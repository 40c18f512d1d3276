package cymo

import "path"

// UploadTask is one local file to upload.
type UploadTask struct {
	// Path locates the file in the local filesystem.
	Path string

	// RelPath is the slash-separated path relative to the scan root.
	// It decides where the file lands under the remote root.
	RelPath string
}

// Dir returns the parent of RelPath, or "" for files at the scan root.
func (t UploadTask) Dir() string {
	dir := path.Dir(t.RelPath)
	if dir == "." {
		return ""
	}
	return dir
}

// Name returns the base name the file is stored under.
func (t UploadTask) Name() string {
	return path.Base(t.RelPath)
}

func (t UploadTask) String() string {
	return t.RelPath
}
