package types

import "io"

// Attachment is the stored reference to an uploaded blob. The engine never
// holds the bytes, only what the blob store returned.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Upload carries blob bytes on their way to the blob store.
type Upload struct {
	reader      io.ReadSeeker
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	FileSize    uint64 `json:"fileSize"`
}

func (u *Upload) SetReader(reader io.ReadSeeker) {
	u.reader = reader
}

func (u *Upload) Reader() io.ReadSeeker {
	return u.reader
}
