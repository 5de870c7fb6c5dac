package services

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/cppla/imgdrop/utils"
)

// TransportStatus is what the multipart layer observed while receiving the file.
type TransportStatus int

const (
	TransportOK TransportStatus = iota
	TransportTooLarge
	TransportPartial
	TransportNoFile
	TransportNoTempDir
	TransportWriteFailed
	TransportBlocked
)

// Message is the uploader facing explanation of a failed transport.
func (s TransportStatus) Message() string {
	switch s {
	case TransportOK:
		return ""
	case TransportTooLarge:
		return "Uploaded file is too large."
	case TransportPartial:
		return "File was only partially uploaded."
	case TransportNoFile:
		return "No file was uploaded."
	case TransportNoTempDir:
		return "Missing a temporary folder on server."
	case TransportWriteFailed:
		return "Failed to write file to disk."
	case TransportBlocked:
		return "File upload was blocked by server policy."
	default:
		return "Unknown upload error."
	}
}

// UploadDescriptor is one candidate file as handed over by the transport layer.
type UploadDescriptor struct {
	Filename string
	Size     int64 // declared by the client, may be zero when unknown
	Body     io.Reader
	Status   TransportStatus
}

// ValidatedUpload is a fully buffered payload that passed every check.
type ValidatedUpload struct {
	Data         []byte
	Mime         string
	Ext          string
	OriginalName string
}

// Validator checks size, extension and sniffed content of an upload.
type Validator struct {
	maxBytes    int64
	allowedExt  map[string]struct{}
	allowedMIME []string
	typeMessage string
}

// NewValidator builds a Validator. Extensions are given without the leading dot.
func NewValidator(maxBytes int64, allowedExt, allowedMIME []string) *Validator {
	exts := make(map[string]struct{}, len(allowedExt))
	for _, e := range allowedExt {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	names := make([]string, 0, len(allowedMIME))
	for _, m := range allowedMIME {
		names = append(names, strings.ToUpper(m[strings.LastIndex(m, "/")+1:]))
	}
	return &Validator{
		maxBytes:    maxBytes,
		allowedExt:  exts,
		allowedMIME: allowedMIME,
		typeMessage: "Unsupported file type. Allowed: " + strings.Join(names, ", ") + ".",
	}
}

// Validate reads the body (at most one byte past the limit) and runs, in order, the
// transport, size, extension and content checks. It has no side effects.
func (v *Validator) Validate(d UploadDescriptor) (*ValidatedUpload, error) {
	if d.Status != TransportOK {
		return nil, newUploadError(KindTransport, d.Status.Message(), nil)
	}
	if d.Body == nil {
		return nil, newUploadError(KindTransport, TransportNoFile.Message(), nil)
	}

	sizeMessage := fmt.Sprintf("File is empty or exceeds size limit (%s).", humanize.IBytes(uint64(v.maxBytes)))
	if d.Size > v.maxBytes {
		return nil, newUploadError(KindSize, sizeMessage, nil)
	}
	data, err := io.ReadAll(io.LimitReader(d.Body, v.maxBytes+1))
	if err != nil {
		return nil, newUploadError(KindTransport, TransportPartial.Message(), err)
	}
	if len(data) == 0 || int64(len(data)) > v.maxBytes {
		return nil, newUploadError(KindSize, sizeMessage, nil)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(d.Filename), "."))
	if _, ok := v.allowedExt[ext]; !ok || ext == "" {
		return nil, newUploadError(KindType, v.typeMessage, nil)
	}

	detected := mimetype.Detect(data)
	mime := ""
	// subtypes such as APNG are recorded as their allow-listed parent
	for m := detected; m != nil && mime == ""; m = m.Parent() {
		for _, allowed := range v.allowedMIME {
			if m.Is(allowed) {
				mime = allowed
				break
			}
		}
	}
	if mime == "" {
		return nil, newUploadError(KindContentMismatch, "File content is not a valid image.",
			fmt.Errorf("sniffed %s", detected.String()))
	}

	return &ValidatedUpload{
		Data:         data,
		Mime:         mime,
		Ext:          ext,
		OriginalName: utils.SanitizeFilename(d.Filename),
	}, nil
}
