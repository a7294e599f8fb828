package cmd

import (
	"fmt"
	"io"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/extractor"
)

type closableExtractor interface {
	extractor.Extractor
	io.Closer
}

type httpCloser struct{ *extractor.HTTPExtractor }

func (httpCloser) Close() error { return nil }

// newExtractor builds the face extractor selected by FACE_EXTRACTOR.
// dlib is the default; the HTTP service is only used when asked for by name
// since its embeddings can have negative cosines, which ranking rejects.
func newExtractor(cfg *config.Config) (closableExtractor, error) {
	switch cfg.Extractor.Kind {
	case "", "dlib":
		d, err := extractor.NewDlibExtractor(cfg.Extractor.ModelsDir)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "http":
		return httpCloser{extractor.NewHTTPExtractor(cfg.Extractor.URL,
			extractor.WithTimeout(cfg.Extractor.Timeout),
			extractor.WithRateLimit(cfg.Extractor.RateLimit),
			extractor.WithMinScore(cfg.Extractor.MinScore),
		)}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want http or dlib)", cfg.Extractor.Kind)
	}
}
