package asset

import (
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Classifier interface {
	Classify(path string) (mime string, kind Kind, err error)
}

// MIMEClassifier sniffs file content rather than trusting extensions.
type MIMEClassifier struct{}

var _ Classifier = MIMEClassifier{}

func (MIMEClassifier) Classify(path string) (string, Kind, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to detect mimetype: %w", err)
	}

	mime, _, _ := strings.Cut(mt.String(), ";")
	kind, ok := KindOf(mime)
	if !ok {
		return mime, "", fmt.Errorf("%w: %s", ErrUnsupportedKind, mime)
	}
	return mime, kind, nil
}

// explicitKinds lists mimetypes whose top-level type does not match their kind.
var explicitKinds = kindIndex(map[Kind][]string{
	KindAudio: {
		"application/ogg",
	},
	KindDocument: {
		"application/excel",
		"application/x-msexcel",
		"application/vnd.ms-excel",
		"application/vnd.ms-excel.sheet.macroenabled.12",
		"application/vnd.ms-office",
		"application/vnd.oasis.opendocument.text",
		"application/vnd.sealed.xls",
		"application/vnd.sealedmedia.softseal.pdf",
		"application/msword",
		"application/pdf",
		"application/x-pdf",
		"application/mspowerpoint",
		"application/vnd.ms-powerpoint",
		"application/postscript",
		"application/rtf",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	},
	KindImage: {
		"application/eps",
		"application/pcx",
		"application/x-pcx",
		"video/x-mng",
	},
	KindVideo: {
		"application/mp4",
		"application/mxf",
		"application/ogv",
		"application/vnd.ms-asf",
		"application/vnd.rn-realmedia-vbr",
		"application/vnd.rn-realmedia",
	},
})

func kindIndex(byKind map[Kind][]string) map[string]Kind {
	index := make(map[string]Kind)
	for kind, mimes := range byKind {
		for _, mime := range mimes {
			index[mime] = kind
		}
	}
	return index
}

// KindOf maps a mimetype to an asset kind: explicit exceptions first, then the
// top-level type.
func KindOf(mime string) (Kind, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if kind, ok := explicitKinds[mime]; ok {
		return kind, true
	}

	top, _, _ := strings.Cut(mime, "/")
	switch Kind(top) {
	case KindVideo, KindAudio, KindImage, KindDocument:
		return Kind(top), true
	default:
		return "", false
	}
}

type Factory struct {
	classifier Classifier
}

func NewFactory(classifier Classifier) *Factory {
	if classifier == nil {
		classifier = MIMEClassifier{}
	}
	return &Factory{classifier: classifier}
}

func (f *Factory) Build(path string, meta Metadata) (*Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat asset: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("asset %s is a directory", path)
	}

	mime, kind, err := f.classifier.Classify(path)
	if err != nil {
		return nil, err
	}

	a := &Asset{
		path:       path,
		kind:       kind,
		mimetype:   mime,
		size:       info.Size(),
		Title:      defaultTitle(path),
		Visibility: Public,
	}
	a.Apply(meta)
	return a, nil
}
