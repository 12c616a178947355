// Package dispatcher implements component J: routes a decoded request
// to the streamer, manifest rewriter or generic request processor.
package dispatcher

import (
	"context"
	"net/http"
	"strings"

	"github.com/streamrelay/proxy/internal/config"
	"github.com/streamrelay/proxy/internal/core/domain"
	"github.com/streamrelay/proxy/internal/core/ports"
	"github.com/streamrelay/proxy/internal/logger"
	"github.com/streamrelay/proxy/internal/manifest"
	"github.com/streamrelay/proxy/internal/util/pattern"
)

type Dispatcher struct {
	prober     ports.ContentProber
	streamer   ports.Streamer
	rewriter   ports.ManifestRewriter
	processor  ports.RequestProcessor
	classifier config.ClassifierConfig
	log        *logger.StyledLogger
}

func New(prober ports.ContentProber, streamer ports.Streamer, rewriter ports.ManifestRewriter, processor ports.RequestProcessor, classifier config.ClassifierConfig, log *logger.StyledLogger) *Dispatcher {
	return &Dispatcher{prober: prober, streamer: streamer, rewriter: rewriter, processor: processor, classifier: classifier, log: log}
}

// Dispatch implements the spec §4.J decision tree. The returned bool is
// true when the response was already written to w by the streamer -
// callers must not attempt to shape or re-serialize it in that case.
func (d *Dispatcher) Dispatch(ctx context.Context, w http.ResponseWriter, method, targetURL string, headers http.Header) (domain.CapturedResponse, bool, error) {
	if method != http.MethodGet {
		return d.processor.Do(ctx, method, targetURL, headers, nil), false, nil
	}

	probe := d.prober.Probe(ctx, targetURL, headers)

	if manifest.IsManifest(probe.ContentType, nil) {
		resp, err := d.rewriter.Rewrite(ctx, targetURL, headers)
		return resp, false, err
	}

	if d.isVideo(probe, targetURL) {
		err := d.streamer.Stream(ctx, w, targetURL, headers, probe)
		return domain.CapturedResponse{}, true, err
	}

	return d.processor.Do(ctx, method, targetURL, headers, nil), false, nil
}

// isVideo implements spec §4.J step 4: URL matches video vocabulary
// AND (content-type matches video indicators OR content-type is
// octet-stream with a video-looking URL OR content-length is large and
// range-capable). The octet-stream branch is lossy - it can misclassify
// a large non-video download as video - so it's logged when it fires.
func (d *Dispatcher) isVideo(probe domain.ProbedContentInfo, targetURL string) bool {
	if !d.urlLooksVideo(targetURL) {
		return false
	}

	lowerCT := strings.ToLower(probe.ContentType)
	for _, indicator := range d.classifier.VideoIndicators {
		if strings.Contains(lowerCT, strings.ToLower(indicator)) {
			return true
		}
	}

	if strings.Contains(lowerCT, "application/octet-stream") {
		if d.log != nil {
			d.log.Warn("classified octet-stream as video via URL heuristic", "target", targetURL)
		}
		return true
	}

	if probe.ContentLength > 1_000_000 && probe.AcceptRanges {
		return true
	}

	return false
}

func (d *Dispatcher) urlLooksVideo(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, ext := range d.classifier.VideoExtensions {
		if strings.Contains(lower, strings.ToLower(ext)) {
			return true
		}
	}
	for _, p := range d.classifier.VideoPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	for _, glob := range d.classifier.VideoGlobs {
		if pattern.MatchesGlob(lower, glob) {
			return true
		}
	}
	return false
}
