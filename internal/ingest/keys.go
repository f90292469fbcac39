package ingest

import (
	"fmt"
	"path"
	"strings"
)

// Data bucket layout.
const (
	RawPrefix         = "raw-data/"
	ValidationPrefix  = "validation-results/"
	ProcessedPrefix   = "processed-data/"
	TranscriptsPrefix = "transcriptions/"
	MetadataPrefix    = "processing-metadata/"

	validationSuffix = "_validation.json"
	processedSuffix  = "_processed.json"
)

func hasAnySuffix(key string, suffixes ...string) bool {
	k := strings.ToLower(key)
	for _, s := range suffixes {
		if strings.HasSuffix(k, s) {
			return true
		}
	}
	return false
}

// IsTextReview matches raw reviews only; pipeline outputs are excluded so a
// misconfigured trigger cannot loop.
func IsTextReview(key string) bool {
	if strings.HasSuffix(key, validationSuffix) || strings.HasSuffix(key, processedSuffix) {
		return false
	}
	return strings.HasSuffix(key, ".txt") || strings.HasSuffix(key, ".json")
}

func IsValidationResult(key string) bool {
	return strings.HasSuffix(key, validationSuffix)
}

func IsImage(key string) bool {
	return hasAnySuffix(key, ".png", ".jpg", ".jpeg")
}

func IsAudio(key string) bool {
	return hasAnySuffix(key, ".mp3", ".wav", ".flac")
}

func swapPrefix(key, from, to string) string {
	if strings.HasPrefix(key, from) {
		return to + strings.TrimPrefix(key, from)
	}
	return strings.Replace(key, "/"+from, "/"+to, 1)
}

func trimExt(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}

// ValidationKey maps raw-data/a/b.txt (or .json) to
// validation-results/a/b_validation.json.
func ValidationKey(rawKey string) string {
	return trimExt(swapPrefix(rawKey, RawPrefix, ValidationPrefix)) + validationSuffix
}

// OriginalKeys lists the raw review keys a validation result may have come
// from, JSON first.
func OriginalKeys(validationKey string) []string {
	stem := strings.TrimSuffix(swapPrefix(validationKey, ValidationPrefix, RawPrefix), validationSuffix)
	return []string{stem + ".json", stem + ".txt"}
}

func EnrichedKey(validationKey string) string {
	return strings.TrimSuffix(swapPrefix(validationKey, ValidationPrefix, ProcessedPrefix), validationSuffix) + processedSuffix
}

// BaseName is the file name without directory or extension.
func BaseName(key string) string {
	return trimExt(path.Base(key))
}

func ImageResultKey(imageKey string) string {
	return fmt.Sprintf("%simages/%s%s", ProcessedPrefix, BaseName(imageKey), processedSuffix)
}

// ProductIDFromKey returns the part of the file name before the first "_",
// or "" when there is none.
func ProductIDFromKey(key string) string {
	b := path.Base(key)
	if id, _, ok := strings.Cut(b, "_"); ok {
		return id
	}
	return ""
}

func TranscriptKey(audioKey string) string {
	return TranscriptsPrefix + BaseName(audioKey) + ".json"
}

func AudioMetadataKey(audioKey string) string {
	return MetadataPrefix + BaseName(audioKey) + "_metadata.json"
}

func AudioResultKey(jobName string) string {
	return fmt.Sprintf("%saudio/%s%s", ProcessedPrefix, jobName, processedSuffix)
}

// MediaFormat maps an audio extension to a Transcribe media format,
// defaulting to mp3.
func MediaFormat(key string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(key), ".")) {
	case "wav":
		return "wav"
	case "flac":
		return "flac"
	case "mp4":
		return "mp4"
	default:
		return "mp3"
	}
}
