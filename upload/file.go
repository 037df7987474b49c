package upload

import (
	"bytes"
	"io"
	"mime/multipart"
)

// File is the uploaded-file abstraction the pipeline consumes. The stream
// returned by Open is treated as single-pass; the pipeline never seeks it.
type File interface {
	// Name returns the original file name as supplied by the uploader.
	Name() string

	// Size returns the declared length in bytes, or -1 if unknown.
	Size() int64

	// ContentType returns the declared content type of the upload.
	ContentType() string

	// Open returns a reader over the file content. The caller closes it.
	Open() (io.ReadCloser, error)
}

// MultipartFile adapts a multipart.FileHeader to the File interface so the
// facade plugs straight into net/http upload handlers.
func MultipartFile(fh *multipart.FileHeader) File {
	return &multipartFile{fh: fh}
}

type multipartFile struct {
	fh *multipart.FileHeader
}

func (f *multipartFile) Name() string        { return f.fh.Filename }
func (f *multipartFile) Size() int64         { return f.fh.Size }
func (f *multipartFile) ContentType() string { return f.fh.Header.Get("Content-Type") }

func (f *multipartFile) Open() (io.ReadCloser, error) {
	return f.fh.Open()
}

// NewMemoryFile wraps an in-memory byte slice as a File. Useful for tests
// and for re-submitting generated content through the pipeline.
func NewMemoryFile(name, contentType string, data []byte) File {
	return &memoryFile{name: name, contentType: contentType, data: data}
}

type memoryFile struct {
	name        string
	contentType string
	data        []byte
}

func (f *memoryFile) Name() string        { return f.name }
func (f *memoryFile) Size() int64         { return int64(len(f.data)) }
func (f *memoryFile) ContentType() string { return f.contentType }

func (f *memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
